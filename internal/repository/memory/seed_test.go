package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lalith-99/portalchat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSeed(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadEmployees(t *testing.T) {
	tests := []struct {
		name string
		file string
		body string
	}{
		{"yaml", "directory.yaml", `
employees:
  - id: Asha@corp
    name: Asha
    department: Research
    team: Research
  - id: chen@corp
    name: Chen
    department: DMC
`},
		{"json", "directory.json", `{"employees":[{"id":"Asha@corp","name":"Asha","department":"Research","team":"Research"},{"id":"chen@corp","name":"Chen","department":"DMC"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			employees, err := LoadEmployees(writeSeed(t, tt.file, tt.body))
			require.NoError(t, err)
			require.Len(t, employees, 2)
			assert.Equal(t, models.Employee{ID: "chen@corp", Name: "Chen", Department: "DMC"}, employees[1])

			st := New(employees...)
			e, err := st.Directory.GetEmployee(context.Background(), "asha@corp")
			require.NoError(t, err)
			require.NotNil(t, e)
			assert.Equal(t, "Research", e.Team)
		})
	}
}

func TestLoadEmployeesRejects(t *testing.T) {
	_, err := LoadEmployees(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "not found")

	_, err = LoadEmployees(writeSeed(t, "bad.yaml", "employees: [a: ["))
	assert.ErrorContains(t, err, "parse directory seed")

	_, err = LoadEmployees(writeSeed(t, "noid.yaml", "employees:\n  - name: Ghost\n"))
	assert.ErrorContains(t, err, "has no id")
}
