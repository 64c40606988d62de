package drive

import (
	"time"

	"github.com/mmcdole/shelf/internal/storage/remote"
)

// fileFields is the partial response selector used on every file request
const fileFields = "id,name,mimeType,modifiedTime,parents,trashed"

// FileResource is a Drive v3 file resource
type FileResource struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name,omitempty"`
	MimeType     string   `json:"mimeType,omitempty"`
	ModifiedTime string   `json:"modifiedTime,omitempty"`
	Parents      []string `json:"parents,omitempty"`
	Trashed      bool     `json:"trashed,omitempty"`
}

// FileList is the response of files.list
type FileList struct {
	NextPageToken string         `json:"nextPageToken"`
	Files         []FileResource `json:"files"`
}

// ErrorResponse is the JSON error envelope returned by Google APIs
type ErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason  string `json:"reason"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"error"`
}

// DeviceCodeResponse is returned when starting the device sign-in flow
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// TokenResponse is returned by the token endpoint, either a token or an error code
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
}

func mapFile(r FileResource) remote.File {
	f := remote.File{
		ID:       r.ID,
		Name:     r.Name,
		MimeType: r.MimeType,
		Parents:  r.Parents,
		Trashed:  r.Trashed,
	}
	if r.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339Nano, r.ModifiedTime); err == nil {
			f.ModifiedTime = t
		}
	}
	return f
}
