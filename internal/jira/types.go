package jira

import (
	"time"

	"github.com/flowmetrics/jira-flow-exporter/internal/flow"
)

// Issue is the subset of a Jira issue the exporter consumes.
type Issue struct {
	Key        string
	Summary    string
	Status     string
	AssigneeID string
	Reporter   string
	Priority   string
	Components []string
	Created    time.Time
	Updated    time.Time

	// Changelog holds status transitions in the order Jira returned them.
	// Consumers must not assume chronological ordering.
	Changelog []flow.Event
}

// Comment is one issue comment.
type Comment struct {
	ID         string
	AuthorID   string
	AuthorName string
	Created    time.Time
}

// Account is a resolved Jira account.
type Account struct {
	AccountID   string
	DisplayName string
}

type searchResponse struct {
	Issues []issueJSON `json:"issues"`
}

type issueJSON struct {
	Key       string        `json:"key"`
	Fields    fieldsJSON    `json:"fields"`
	Changelog changelogJSON `json:"changelog"`
}

type fieldsJSON struct {
	Summary  string `json:"summary"`
	Status   named  `json:"status"`
	Priority named  `json:"priority"`
	Assignee struct {
		AccountID string `json:"accountId"`
	} `json:"assignee"`
	Reporter struct {
		DisplayName string `json:"displayName"`
	} `json:"reporter"`
	Components []named `json:"components"`
	Created    string  `json:"created"`
	Updated    string  `json:"updated"`
}

type named struct {
	Name string `json:"name"`
}

type changelogJSON struct {
	Histories []historyJSON `json:"histories"`
}

type historyJSON struct {
	Created string `json:"created"`
	Items   []struct {
		Field      string `json:"field"`
		FromString string `json:"fromString"`
		ToString   string `json:"toString"`
	} `json:"items"`
}

type commentsResponse struct {
	Comments []struct {
		ID     string `json:"id"`
		Author struct {
			AccountID   string `json:"accountId"`
			DisplayName string `json:"displayName"`
		} `json:"author"`
		Created string `json:"created"`
	} `json:"comments"`
}

type userJSON struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}
