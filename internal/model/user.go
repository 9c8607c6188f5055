package model

import "strings"

type User struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	FollowersCount int    `json:"followers_count"`
	FollowingCount int    `json:"following_count"`
	TweetCount     int    `json:"tweet_count"`
}

// HasBio reports whether the account has a non-blank profile description.
func (u User) HasBio() bool {
	return strings.TrimSpace(u.Description) != ""
}
