package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/oauth2"
)

// sessionLength is the assumed validity period of a Salesforce access token
// when the provider does not report one.
const sessionLength = 2 * time.Hour

// fixSalesforceToken normalises the extras of a token returned by the
// Salesforce token endpoint. Salesforce reports the critical instance_url as
// a token extra and, instead of an expiry, an issued_at timestamp in
// milliseconds, leaving Expiry at the Go zero time:
//
//	&oauth2.Token{
//		AccessToken:"xxxx",
//		TokenType:"Bearer",
//		RefreshToken:"yyy",
//		Expiry:time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC),
//		raw:map[string]interface {}{
//			"access_token":"xxx",
//			"instance_url":"https://orgfarm-xxx-dev-ed.develop.my.salesforce.com",
//			"issued_at":"1771257689412",
//			"refresh_token":"yyy",
//			...
//		},
//	}
//
// The returned instance URL is always non-empty on success.
func fixSalesforceToken(tok *oauth2.Token) (instanceURL string, issuedAt time.Time, err error) {
	if tok == nil {
		return "", time.Time{}, errors.New("nil token received")
	}

	instanceURL, ok := tok.Extra("instance_url").(string)
	if !ok || instanceURL == "" {
		return "", time.Time{}, errors.New("no instance_url found in salesforce token")
	}

	// Salesforce sends issued_at in milliseconds as a string.
	if issuedAtStr, ok := tok.Extra("issued_at").(string); ok && issuedAtStr != "" {
		ms, err := strconv.ParseInt(issuedAtStr, 10, 64)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("could not parse salesforce issued_at: %w", err)
		}
		issuedAt = time.UnixMilli(ms)
	}

	if tok.Expiry.IsZero() {
		if issuedAt.IsZero() {
			// Neither expiry nor issued_at: leave the expiry unknown.
			return instanceURL, issuedAt, nil
		}
		tok.Expiry = issuedAt.Add(sessionLength)
	}

	return instanceURL, issuedAt, nil
}
