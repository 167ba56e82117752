package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uw-schedule-builder/internal/dto"
)

const sessionsCSV = `term_code,subject_code,catalog_number,class_number,section,component,weekly_pattern,start_time,end_time,enrollment_capacity,enrollment_total
1261,MATH,135,1001,LEC 001,LEC,YNYNYNN,2026-01-05T08:30:00,2026-01-05T09:20:00,100,100
1261,MATH,135,1002,LEC 002,LEC,YNYNYNN,2026-01-05T10:30:00,2026-01-05T11:20:00,100,40
1261,CS,135,2001,LEC 001,LEC,YNYNYNN,2026-01-05T08:30:00,2026-01-05T09:20:00,80,10
`

func writeSessions(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.csv")
	require.NoError(t, os.WriteFile(path, []byte(sessionsCSV), 0o600))
	return path
}

func TestGenerateOfflineJSON(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out).Run([]string{"schedule-cli", "generate", "--sessions", writeSessions(t), "--json"})
	require.NoError(t, err)

	var resp dto.GenerateSchedulesResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Equal(t, "1261", resp.TermCode)
	require.Equal(t, 1, resp.ScheduleCount)
	require.Len(t, resp.Schedules[0], 2)
	assert.Equal(t, "1002", resp.Schedules[0][0].ClassNumber)
	assert.Equal(t, "2001", resp.Schedules[0][1].ClassNumber)
}

func TestGenerateOfflineTable(t *testing.T) {
	var out bytes.Buffer
	err := newApp(&out).Run([]string{"schedule-cli", "g", "-s", writeSessions(t), "-c", "MATH135"})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "Schedule 1")
	assert.Contains(t, text, "Schedule 2")
	assert.Contains(t, text, "FULL")
	assert.Contains(t, text, "2 schedule(s)")
}
