package models

import "strings"

// DiscoveryInputs is the normalized snapshot of a discovery request, stored
// immutably on the job at creation. At least one of the course or book
// identity fields must be present.
type DiscoveryInputs struct {
	UniversityName       string   `json:"university_name,omitempty"`
	CourseName           string   `json:"course_name,omitempty"`
	CourseURL            string   `json:"course_url,omitempty"`
	Textbook             string   `json:"textbook,omitempty"`
	TopicsList           string   `json:"topics_list,omitempty"`
	BookTitle            string   `json:"book_title,omitempty"`
	BookAuthor           string   `json:"book_author,omitempty"`
	ISBN                 string   `json:"isbn,omitempty"`
	BookURL              string   `json:"book_url,omitempty"`
	DesiredResourceTypes []string `json:"desired_resource_types,omitempty"`
	ExcludedSites        string   `json:"excluded_sites,omitempty"`
	TargetedSites        string   `json:"targeted_sites,omitempty"`
}

// HasIdentity reports whether the inputs name at least one course or book,
// which is the minimum needed to run discovery.
func (in DiscoveryInputs) HasIdentity() bool {
	return in.CourseURL != "" || in.BookURL != "" || in.ISBN != "" ||
		(in.BookTitle != "" && in.BookAuthor != "") ||
		in.CourseName != "" || in.Textbook != ""
}

// SearchTitle derives a user-friendly display name for the request.
func (in DiscoveryInputs) SearchTitle() string {
	switch {
	case in.BookTitle != "":
		return in.BookTitle
	case in.CourseName != "" && in.UniversityName != "":
		return in.UniversityName + " - " + in.CourseName
	case in.CourseName != "":
		return in.CourseName
	case in.UniversityName != "":
		return in.UniversityName + " Course"
	case in.Textbook != "":
		return in.Textbook
	}
	return "Course Resource Search"
}

// TrimmedTopics splits the comma-separated topics list into trimmed,
// non-empty entries.
func (in DiscoveryInputs) TrimmedTopics() []string {
	if in.TopicsList == "" {
		return nil
	}
	var topics []string
	for _, t := range strings.Split(in.TopicsList, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	return topics
}
