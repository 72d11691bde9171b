package util

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"paasport/job"
	"paasport/logger"
)

// debug level logging output fields for system helpers
func systemLogDebugFields(context *job.JobContext) map[string]interface{} {
	coreFields := logger.CoreLogFields(context, "system")
	fields := logger.MergeFields(coreFields, map[string]interface{}{
		"data_dir":     context.DataDir,
		"archive_path": context.ArchivePath,
	})
	return fields
}

// executes command on os
func RunCommand(commandName string, args ...string) error {
	cmd := exec.Command(commandName, args...)

	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// executes command on os, capturing output
func RunCommandWithOutput(cmd string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.Command(cmd, args...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	err := command.Run()
	output := stdout.String() + stderr.String()
	if err != nil {
		return output, fmt.Errorf("%s", output)
	}
	return output, nil
}

// remove file from os
func RemoveTempFile(context *job.JobContext, filePath string) error {

	verboseFields := systemLogDebugFields(context)

	logger.LogxWithFields("debug", fmt.Sprintf("Cleaning up file at %s", filePath), verboseFields)

	if err := os.Remove(filePath); err != nil {
		return fmt.Errorf("error removing file: %v", err)
	}
	logger.LogxWithFields("debug", fmt.Sprintf("File %s removed", filePath), verboseFields)

	return nil
}

func ValidateDirectoryString(directoryPathString string) error {
	// validate directory exists
	dirInfo, err := os.Stat(directoryPathString)

	// if dir DNE or is not dirtype, return err
	if err != nil || !dirInfo.IsDir() {
		return fmt.Errorf("target path %s does not exist or is not a directory", directoryPathString)
	}

	return nil
}

func ValidateDirectoryWriteable(directoryPathString string) error {
	// validate directory string before proceeding
	if err := ValidateDirectoryString(directoryPathString); err != nil {
		return err
	}

	// attempt to create temp local file
	testFilePath := filepath.Join(directoryPathString, ".paasport_testwrite.tmp")
	// create & remove file, return error if file creation fails
	testFile, err := os.Create(testFilePath)
	if err != nil {
		return fmt.Errorf("cannot write to destination directory %s: %v", directoryPathString, err)
	}
	testFile.Close()
	os.Remove(testFilePath)

	return nil
}

func GetDirectorySize(path string) (int64, error) {
	var total int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err // propagate error
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
