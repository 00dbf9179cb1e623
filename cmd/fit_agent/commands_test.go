package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands_FlagsValidation(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantError   bool
		errorString string
	}{
		{
			name:        "analyze without --in",
			args:        []string{"analyze"},
			wantError:   true,
			errorString: "required",
		},
		{
			name:        "add-materials without --session",
			args:        []string{"add-materials", "--in", "notes.md"},
			wantError:   true,
			errorString: "required",
		},
		{
			name:        "status without --upload",
			args:        []string{"status"},
			wantError:   true,
			errorString: "required",
		},
		{
			name:        "match without a job description",
			args:        []string{"match", "--session", "s1"},
			wantError:   true,
			errorString: "--jd-id or --jd-file",
		},
		{
			name:        "match with both job description flags",
			args:        []string{"match", "--session", "s1", "--jd-id", "jd-1", "--jd-file", "jd.txt"},
			wantError:   true,
			errorString: "none of the others can be",
		},
		{
			name:        "eval without --actual",
			args:        []string{"eval", "--expected", "expected.json"},
			wantError:   true,
			errorString: "required",
		},
		{
			name:        "eval --before without --direction",
			args:        []string{"eval", "--expected", "a.json", "--actual", "b.json", "--before", "c.json", "--role", "QR"},
			wantError:   true,
			errorString: "must all be set",
		},
		{
			name:        "export without --out",
			args:        []string{"export", "--session", "s1"},
			wantError:   true,
			errorString: "required",
		},
		{
			name:        "search-jd with unknown role",
			args:        []string{"search-jd", "--query", "serving", "--role", "CEO"},
			wantError:   true,
			errorString: "CEO",
		},
		{
			name:        "invalid log level",
			args:        []string{"eval", "--expected", "a.json", "--actual", "b.json", "--log-level", "loud"},
			wantError:   true,
			errorString: "log.level",
		},
	}

	binaryPath := getBinaryPath(t)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := exec.Command(binaryPath, tt.args...)
			cmd.Env = append(os.Environ(), "FIT_DATA_DIR="+t.TempDir())
			output, err := cmd.CombinedOutput()

			if tt.wantError {
				assert.Error(t, err)
				if tt.errorString != "" {
					assert.Contains(t, string(output), tt.errorString)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAnalyzeCommand_OfflineEndToEnd(t *testing.T) {
	binaryPath := getBinaryPath(t)
	dir := t.TempDir()

	resume := filepath.Join(dir, "resume.md")
	require.NoError(t, os.WriteFile(resume, []byte(
		"Experience\n\n- Fine-tuned LLMs with PyTorch and deployed model serving on Kubernetes\n"+
			"- Built gRPC microservices in Go and designed REST APIs\n"), 0o644))

	cmd := exec.Command(binaryPath, "analyze", "--in", resume, "--offline", "--data-dir", dir)
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, string(output))
	assert.Contains(t, string(output), "Session:")
	assert.Contains(t, string(output), "ROLE-FIT DISTRIBUTION")

	cmd = exec.Command(binaryPath, "sessions", "--offline", "--data-dir", dir)
	output, err = cmd.CombinedOutput()
	require.NoError(t, err, string(output))
	assert.Contains(t, string(output), "generation 1")
}

func TestEvalCommand(t *testing.T) {
	binaryPath := getBinaryPath(t)
	dir := t.TempDir()

	expected := filepath.Join(dir, "expected.json")
	near := filepath.Join(dir, "near.json")
	far := filepath.Join(dir, "far.json")
	require.NoError(t, os.WriteFile(expected, []byte(`{"MLE": 0.7, "SWE": 0.3}`), 0o644))
	require.NoError(t, os.WriteFile(near, []byte(`{"role_fit_distribution": {"mle": 0.65, "swe": 0.35}}`), 0o644))
	require.NoError(t, os.WriteFile(far, []byte(`{"QR": 1}`), 0o644))

	output, err := exec.Command(binaryPath, "eval", "--expected", expected, "--actual", near).CombinedOutput()
	assert.NoError(t, err, string(output))
	assert.Contains(t, string(output), "PASS")

	output, err = exec.Command(binaryPath, "eval", "--expected", expected, "--actual", far).CombinedOutput()
	assert.Error(t, err)
	assert.Contains(t, string(output), "FAIL")

	before := filepath.Join(dir, "before.json")
	require.NoError(t, os.WriteFile(before, []byte(`{"MLE": 1}`), 0o644))
	output, err = exec.Command(binaryPath, "eval", "--expected", expected, "--actual", near,
		"--before", before, "--role", "SWE", "--direction", "up").CombinedOutput()
	assert.NoError(t, err, string(output))
	assert.Contains(t, string(output), "SWE share +0.350")

	output, err = exec.Command(binaryPath, "eval", "--expected", expected, "--actual", near,
		"--before", before, "--role", "SWE", "--direction", "down").CombinedOutput()
	assert.Error(t, err)
	assert.Contains(t, string(output), "expected -")
}
