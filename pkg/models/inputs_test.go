package models_test

import (
	"testing"

	"github.com/scholarsource/scholarsource/pkg/models"
	"github.com/stretchr/testify/assert"
)

func TestHasIdentity(t *testing.T) {
	tests := []struct {
		name   string
		inputs models.DiscoveryInputs
		want   bool
	}{
		{"empty", models.DiscoveryInputs{}, false},
		{"course url", models.DiscoveryInputs{CourseURL: "https://ocw.example.edu"}, true},
		{"book url", models.DiscoveryInputs{BookURL: "https://openstax.org/calc"}, true},
		{"isbn", models.DiscoveryInputs{ISBN: "978-0262046305"}, true},
		{"course name", models.DiscoveryInputs{CourseName: "Linear Algebra"}, true},
		{"textbook", models.DiscoveryInputs{Textbook: "Strang, Linear Algebra"}, true},
		{"book title and author", models.DiscoveryInputs{BookTitle: "Calculus", BookAuthor: "Stewart"}, true},
		{"book title alone", models.DiscoveryInputs{BookTitle: "Calculus"}, false},
		{"book author alone", models.DiscoveryInputs{BookAuthor: "Stewart"}, false},
		{"university alone", models.DiscoveryInputs{UniversityName: "MIT", TopicsList: "limits"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.inputs.HasIdentity())
		})
	}
}

func TestSearchTitle(t *testing.T) {
	tests := []struct {
		name   string
		inputs models.DiscoveryInputs
		want   string
	}{
		{"book title wins", models.DiscoveryInputs{BookTitle: "Calculus", CourseName: "Math 101", UniversityName: "MIT"}, "Calculus"},
		{"university and course", models.DiscoveryInputs{CourseName: "Math 101", UniversityName: "MIT"}, "MIT - Math 101"},
		{"course only", models.DiscoveryInputs{CourseName: "Math 101"}, "Math 101"},
		{"university only", models.DiscoveryInputs{UniversityName: "MIT"}, "MIT Course"},
		{"textbook fallback", models.DiscoveryInputs{Textbook: "Strang"}, "Strang"},
		{"nothing", models.DiscoveryInputs{}, "Course Resource Search"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.inputs.SearchTitle())
		})
	}
}

func TestTrimmedTopics(t *testing.T) {
	in := models.DiscoveryInputs{TopicsList: " limits , , derivatives,integrals "}
	assert.Equal(t, []string{"limits", "derivatives", "integrals"}, in.TrimmedTopics())

	assert.Nil(t, models.DiscoveryInputs{}.TrimmedTopics())
}
