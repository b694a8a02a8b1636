package downloader

import (
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"civitdl/internal/errs"
	"civitdl/internal/models"

	log "github.com/sirupsen/logrus"
)

// authRedirectMarker shows up in the final URL when Civitai bounces an
// anonymous request for a gated model to its login page.
const authRedirectMarker = "reason=download-auth"

const authHint = `Unable to download this model as it requires an API Key.
Please head to civitai.com, go to Account Settings, then API Keys, create a key,
and pass it with --api-key or set ApiKey in the config file.`

var downloadVersionRe = regexp.MustCompile(`models/(\d+)`)

// CheckAuthRequired reports an input error when resp is the result of an
// authentication redirect rather than the artifact itself.
func CheckAuthRequired(resp *http.Response) error {
	if resp == nil || resp.Request == nil || resp.Request.URL == nil {
		return nil
	}
	if strings.Contains(resp.Request.URL.String(), authRedirectMarker) {
		return errs.Inputf("Model download requires authentication").WithHint(authHint)
	}
	return nil
}

// ResolveFilename recovers the artifact's original filename from the
// response headers, falling back to the version's file list when the header
// value is not valid UTF-8.
func ResolveFilename(header http.Header, version *models.ModelVersion, versionID, original string) (string, error) {
	disposition := header.Get("Content-Disposition")
	if disposition == "" {
		return "", errs.Resourcesf("Download response for %s has no Content-Disposition header", original)
	}

	raw, ok := filenameParam(disposition)
	if !ok {
		// Only an RFC 5987 filename*= parameter; mime decodes it into "filename".
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			raw, ok = params["filename"], true
		}
	}

	if ok {
		// Header values arrive as the raw wire bytes, so valid UTF-8 is the
		// whole re-decoding step.
		if utf8.ValidString(raw) {
			if name := safeBase(raw); name != "" {
				return name, nil
			}
		} else {
			log.Debugf("Filename in Content-Disposition for %s is not valid UTF-8, using file list", original)
		}
	}

	if name := filenameFromFiles(version, versionID); name != "" {
		return name, nil
	}
	return "", errs.Unexpectedf(nil, "Unable to retrieve filename for %s", original)
}

// filenameParam returns the value of the last filename= parameter. A quoted
// value ends at its closing quote, a bare one at the next ';'.
func filenameParam(disposition string) (string, bool) {
	const key = "filename="
	idx := strings.LastIndex(disposition, key)
	if idx < 0 {
		return "", false
	}
	v := strings.TrimSpace(disposition[idx+len(key):])
	if strings.HasPrefix(v, `"`) {
		if end := strings.IndexByte(v[1:], '"'); end >= 0 {
			v = v[1 : 1+end]
		}
	} else if semi := strings.IndexByte(v, ';'); semi >= 0 {
		v = v[:semi]
	}
	v = strings.Trim(strings.TrimSpace(v), `"`)
	return v, v != ""
}

// filenameFromFiles picks the file whose download URL names versionID,
// preferring the primary file.
func filenameFromFiles(version *models.ModelVersion, versionID string) string {
	if version == nil {
		return ""
	}
	var fallback string
	for _, f := range version.Files {
		m := downloadVersionRe.FindStringSubmatch(f.DownloadUrl)
		if m == nil || m[1] != versionID {
			continue
		}
		name := safeBase(f.Name)
		if name == "" {
			continue
		}
		if f.Primary {
			return name
		}
		if fallback == "" {
			fallback = name
		}
	}
	return fallback
}

// safeBase strips any directory part so a hostile header cannot escape the
// destination directory.
func safeBase(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}
