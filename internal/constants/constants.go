// Package constants is responsible for defining the constants used in the application.
// It also provides utility functions to get the default working and cache paths.
package constants

import (
	"fmt"
	"os"
	"path/filepath"
)

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// CmdName is the name of the render service command.
	CmdName = "clipforge-render-service"

	// ServiceName is the name reported by the status endpoint.
	ServiceName = "clipforge-render-service"

	// CallbackSource is the source tag attached to webhook callbacks.
	CallbackSource = "render"

	// DefaultFolder is the name of the default root folder for service data.
	DefaultFolder = "clipforge"

	// DefaultWorkFolder is the name of the folder holding per-job scratch directories.
	DefaultWorkFolder = "work"

	// DefaultModelCacheFolder is the name of the folder holding downloaded transcription models.
	DefaultModelCacheFolder = "models"
)

// Service variables.
var (
	// DefaultDataDir is the default data directory for the service.
	DefaultDataDir = DefaultFolder

	// DefaultWorkDir is the default scratch directory for render jobs.
	DefaultWorkDir = filepath.Join(DefaultDataDir, DefaultWorkFolder)

	// DefaultModelCacheDir is the default cache directory for transcription models.
	DefaultModelCacheDir = filepath.Join(DefaultDataDir, DefaultModelCacheFolder)
)

func init() {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		panic(fmt.Sprintf("Could not fetch cache directory: %v", err))
	}

	DefaultDataDir = filepath.Join(userCacheDir, DefaultFolder)
	DefaultWorkDir = filepath.Join(DefaultDataDir, DefaultWorkFolder)
	DefaultModelCacheDir = filepath.Join(DefaultDataDir, DefaultModelCacheFolder)
}
