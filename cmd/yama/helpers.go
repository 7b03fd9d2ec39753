package main

import (
	"path/filepath"
	"time"

	"github.com/betagors/yama/internal/collateral"
)

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func collateralRecorder(projectDir string) (*collateral.FileRecorder, error) {
	return collateral.NewFileRecorder(yamaDir(projectDir))
}
