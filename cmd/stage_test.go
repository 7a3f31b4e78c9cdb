package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/crm-cli/internal/model"
	"github.com/sells-group/crm-cli/internal/stage"
)

func TestFormatCanonical_PipelineFallback(t *testing.T) {
	var buf bytes.Buffer
	formatCanonical(&buf, stage.DefaultTable(), []string{"Proposal", "???"}, []string{"Custom Intake", "Discovery"})

	out := buf.String()
	assert.Contains(t, out, "LABEL")
	assert.Contains(t, out, "proposal / scope")
	assert.Contains(t, out, "discovery")
}

func TestFormatPipelines(t *testing.T) {
	var buf bytes.Buffer
	formatPipelines(&buf, nil)
	assert.Equal(t, "No pipelines.\n", buf.String())

	buf.Reset()
	formatPipelines(&buf, []model.Pipeline{{
		ID:        3,
		Name:      "Inbound",
		Stages:    []string{"new", "won"},
		CreatedAt: time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC),
	}})
	out := buf.String()
	assert.Contains(t, out, "Inbound")
	assert.Contains(t, out, "new, won")
	assert.Contains(t, out, "2025-06-15 10:30")
}
