package models

import "time"

// GitHubInstallation is a GitHub App installation, optionally bound to one team.
type GitHubInstallation struct {
	ID             string    `json:"id"`
	InstallationID int64     `json:"installation_id"`
	AccountLogin   string    `json:"account_login"`
	AccountType    string    `json:"account_type"`
	TeamID         *string   `json:"team_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (i *GitHubInstallation) Linked() bool {
	return i.TeamID != nil
}

// LinkedTo reports whether the installation is bound to teamID.
func (i *GitHubInstallation) LinkedTo(teamID string) bool {
	return i.TeamID != nil && *i.TeamID == teamID
}
