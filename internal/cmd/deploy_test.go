package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absenteeism-ml/absdeploy/internal/config"
	"github.com/absenteeism-ml/absdeploy/pkg/report"
)

func TestRemoteHealthURL(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		host       string
		want       string
	}{
		{
			name:       "replaces host keeping port and path",
			configured: "http://localhost:8000/health",
			host:       "203.0.113.7",
			want:       "http://203.0.113.7:8000/health",
		},
		{
			name:       "no port",
			configured: "http://localhost/health",
			host:       "203.0.113.7",
			want:       "http://203.0.113.7/health",
		},
		{
			name:       "unparseable falls back to default port",
			configured: "://broken",
			host:       "203.0.113.7",
			want:       "http://203.0.113.7:8000/health",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, remoteHealthURL(tt.configured, tt.host))
		})
	}
}

func TestStageWriter(t *testing.T) {
	orig := deployOutput
	defer func() { deployOutput = orig }()

	t.Run("text yields nop writer", func(t *testing.T) {
		deployOutput = "text"
		w, err := stageWriter("run-1", "local")
		require.NoError(t, err)
		assert.IsType(t, report.NopWriter{}, w)
	})

	t.Run("jsonl yields jsonl writer", func(t *testing.T) {
		deployOutput = "jsonl"
		w, err := stageWriter("run-1", "local")
		require.NoError(t, err)
		assert.IsType(t, &report.JSONLWriter{}, w)
	})

	t.Run("unknown value is rejected", func(t *testing.T) {
		deployOutput = "xml"
		_, err := stageWriter("run-1", "local")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "xml")
	})
}

func TestLocalStagesOrder(t *testing.T) {
	cfg := &config.Config{
		Mode: config.ModeLocal,
		Paths: config.PathsConfig{
			RawData:       "data/raw/absenteeism_at_work.csv",
			ProcessedData: "data/processed/dataset.csv",
			Model:         "models/model.pkl",
			Requirements:  "requirements.txt",
			VenvDir:       ".venv",
		},
		Docker: config.DockerConfig{ComposeFile: "docker-compose.yml", LogTail: 50},
		Health: config.HealthConfig{URL: "http://localhost:8000/health", MaxAttempts: 10},
	}

	stages := localStages(cfg)
	require.Len(t, stages, 5)

	names := make([]string, 0, len(stages))
	for _, s := range stages {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{
		"prepare_env",
		"preprocess",
		"train",
		"build_and_start",
		"health_check",
	}, names)
}

func TestLayoutFromConfig(t *testing.T) {
	cfg := &config.Config{
		Paths: config.PathsConfig{
			RawData:       "a.csv",
			ProcessedData: "b.csv",
			Model:         "m.pkl",
		},
	}
	layout := layoutFromConfig(cfg)
	assert.Equal(t, "a.csv", layout.RawData)
	assert.Equal(t, "b.csv", layout.ProcessedData)
	assert.Equal(t, "m.pkl", layout.Model)
}
