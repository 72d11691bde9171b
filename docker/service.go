package docker

import (
	"fmt"

	"paasport/job"
	"paasport/logger"
	"paasport/util"
)

// debug level logging output fields for docker package
func dockerLogBaseFields(context job.JobContext) map[string]interface{} {
	coreFields := logger.CoreLogFields(&context, "docker")
	fields := logger.MergeFields(coreFields, map[string]interface{}{
		"stop_docker": context.StopDocker,
		"data_dir":    context.DataDir,
	})
	return fields
}

// StopService stops the local docker daemon and its activation socket so
// in-use volume data is quiesced before archiving.
func StopService(context *job.JobContext) error {
	verboseFields := dockerLogBaseFields(*context)

	logger.LogxWithFields("debug", "Stopping docker.service & docker.socket before archive build", verboseFields)
	if err := util.RunCommand("systemctl", "stop", "docker", "docker.socket"); err != nil {
		return fmt.Errorf("failed to stop docker service: %v", err)
	}

	logger.LogxWithFields("info", "Docker daemon stopped for consistent archive", map[string]interface{}{
		"package": "docker",
		"target":  context.Target,
		"job_id":  context.JobID,
	})
	return nil
}

// StartService brings the local docker daemon back up after the archive
// has been written.
func StartService(context *job.JobContext) error {
	verboseFields := dockerLogBaseFields(*context)

	logger.LogxWithFields("debug", "Restarting docker.service after archive build", verboseFields)
	if err := util.RunCommand("systemctl", "start", "docker"); err != nil {
		return fmt.Errorf("failed to start docker service: %v", err)
	}

	logger.LogxWithFields("info", "Docker daemon restarted", map[string]interface{}{
		"package": "docker",
		"target":  context.Target,
		"job_id":  context.JobID,
	})
	return nil
}
