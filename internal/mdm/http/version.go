package http

import (
	"net/http"

	"github.com/aussiebroadwan/mdm/pkg/httpx"
)

type versionResponse struct {
	Version string `json:"version"`
	Build   string `json:"build"`
}

// VersionHandler reports the API version clients gate their connection on.
func VersionHandler(buildVersion string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, versionResponse{
			Version: APIVersion,
			Build:   buildVersion,
		})
	}
}
