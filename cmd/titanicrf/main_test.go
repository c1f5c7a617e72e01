package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTrain(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("PassengerId,Survived,Sex,Fare\n")
	for i := 1; i <= 40; i++ {
		sex := i % 2
		survived := sex
		if i%8 == 0 {
			survived = 1 - sex
		}
		fmt.Fprintf(&b, "%d,%d,%d,%d\n", i, survived, sex, 10+sex*30+i%7)
	}
	path := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestRunWithArgs(t *testing.T) {
	dir := t.TempDir()
	train := writeTrain(t, dir)
	roc := filepath.Join(dir, "ROC.png")

	var stdout, stderr bytes.Buffer
	code := runWithArgs(context.Background(), []string{
		"-train", train, "-test", "",
		"-preset", "single-best", "-n-estimators", "8", "-max-depth", "3",
		"-folds", "3", "-roc-plot", roc, "-importance-plot", "",
		"-submission", "", "-log-level", "warn",
	}, &stdout, &stderr)

	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "OOF AUC")
	assert.Contains(t, stdout.String(), "wrote "+roc)
	_, err := os.Stat(roc)
	assert.NoError(t, err)
}

func TestRunWithArgs_Failures(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code int
	}{
		{"unknown flag", []string{"-bogus"}, 2},
		{"positional argument", []string{"extra"}, 2},
		{"bad log level", []string{"-log-level", "loud"}, 2},
		{"bad preset", []string{"-preset", "huge"}, 2},
		{"missing input", []string{"-train", "does-not-exist.csv", "-test", ""}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.code, runWithArgs(context.Background(), tt.args, &stdout, &stderr))
		})
	}
}
