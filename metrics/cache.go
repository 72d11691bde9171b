package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const jobMetricsFileName = "last_job_metrics.json"

// reads the cached job metrics from jsonfile
func ReadJSONMetrics(metricsDir string) (JobMetrics, error) {
	var job JobMetrics

	jobPath := filepath.Join(metricsDir, jobMetricsFileName)

	jobFile, err := os.ReadFile(jobPath)
	if err != nil {
		return job, fmt.Errorf("reading job metrics: %w", err)
	}
	if err := json.Unmarshal(jobFile, &job); err != nil {
		return job, fmt.Errorf("parsing job metrics: %w", err)
	}

	return job, nil
}

func writeAtomicJSON(metricsFilePath string, data any) error {
	tmpFilePath := metricsFilePath + ".tmp"
	f, err := os.Create(tmpFilePath)
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		f.Close()
		return err
	}
	f.Close()
	return os.Rename(tmpFilePath, metricsFilePath)
}

func WriteMetricsFile(metricsDir string, jobMetrics JobMetrics) error {
	jobPath := filepath.Join(metricsDir, jobMetricsFileName)

	if err := writeAtomicJSON(jobPath, jobMetrics); err != nil {
		return fmt.Errorf("writing job metrics: %w", err)
	}
	return nil
}

// LoadFromCacheAndExpose republishes the last persisted run into the
// prometheus gauges, used when serving metrics without running a job.
func LoadFromCacheAndExpose(metricsDir string) error {
	job, err := ReadJSONMetrics(metricsDir)
	if err != nil {
		return err
	}

	ApplyPrometheusMetrics(job)
	return nil
}
