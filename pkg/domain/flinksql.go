package domain

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	TaskTypeFlinkSQL = "flink_sql"
	TaskTypeFlinkCDC = "flink_cdc_pipeline"

	defaultFlinkSQLName    = "A Flink SQL"
	defaultFlinkSQLTimeout = 30
)

// FlinkSQLTask is the YAML body the agent API expects for flink_sql tasks.
type FlinkSQLTask struct {
	TaskType       string      `yaml:"task_type"`
	Name           string      `yaml:"name"`
	Description    string      `yaml:"description"`
	TimeoutSeconds int         `yaml:"task_timeout_seconds"`
	Job            FlinkSQLJob `yaml:"job"`
}

type FlinkSQLJob struct {
	SQL      string        `yaml:"sql"`
	Pipeline FlinkPipeline `yaml:"pipeline"`
}

type FlinkPipeline struct {
	Name        string `yaml:"name"`
	Parallelism int    `yaml:"parallelism"`
}

// NewFlinkSQLTask fills the defaults used by the notebook tooling.
func NewFlinkSQLTask(name, sql string, timeoutSeconds int) FlinkSQLTask {
	if strings.TrimSpace(name) == "" {
		name = defaultFlinkSQLName
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = defaultFlinkSQLTimeout
	}
	return FlinkSQLTask{
		TaskType:       TaskTypeFlinkSQL,
		Name:           name,
		Description:    name,
		TimeoutSeconds: timeoutSeconds,
		Job: FlinkSQLJob{
			SQL:      sql,
			Pipeline: FlinkPipeline{Name: name, Parallelism: 1},
		},
	}
}

func (t FlinkSQLTask) YAML() (string, error) {
	if strings.TrimSpace(t.Job.SQL) == "" {
		return "", fmt.Errorf("flink sql task: empty sql")
	}
	b, err := yaml.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("flink sql task: %w", err)
	}
	return string(b), nil
}
