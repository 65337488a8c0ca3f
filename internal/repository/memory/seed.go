package memory

import (
	"fmt"
	"os"

	"github.com/lalith-99/portalchat/internal/models"
	"gopkg.in/yaml.v3"
)

// seedFile is the directory fixture for the in-memory backend:
//
//	employees:
//	  - id: asha@corp
//	    name: Asha
//	    department: Research
//	    team: Research
type seedFile struct {
	Employees []struct {
		ID         string `yaml:"id"`
		Name       string `yaml:"name"`
		Department string `yaml:"department"`
		Team       string `yaml:"team"`
	} `yaml:"employees"`
}

// LoadEmployees reads a directory fixture. JSON files work too.
func LoadEmployees(path string) ([]models.Employee, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory seed not found: %s", path)
		}
		return nil, fmt.Errorf("read directory seed: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("parse directory seed: %w", err)
	}

	out := make([]models.Employee, 0, len(seed.Employees))
	for i, e := range seed.Employees {
		if e.ID == "" {
			return nil, fmt.Errorf("directory seed: employee %d has no id", i)
		}
		out = append(out, models.Employee{ID: e.ID, Name: e.Name, Department: e.Department, Team: e.Team})
	}
	return out, nil
}
