package deploy

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
)

var (
	badFilePattern   = regexp.MustCompile(`(/\S+\.ya?ml\S*)`)
	secretKindInYAML = regexp.MustCompile(`(?m)kind:\s*Secret`)
	stagedNamePrefix = regexp.MustCompile(`^\d+-`)
)

const suppressedMessage = "SUPPRESSED FOR SECURITY"

// sanitizeStderrForResource enforces the same sensitive-resource
// suppression rule classifyAndReport applies to the apply-pass path, for
// callers that surface raw stderr text through a returned error instead of
// the summary sink (the individuals path's replace/create fallback). Any
// resource that is sensitive and not yet cleared by a successful
// server-side dry run never has its raw stderr echoed.
func sanitizeStderrForResource(r *resource.Resource, raw string) string {
	if r.Sensitive && !r.ServerDryRunValidated {
		return suppressedMessage
	}
	return raw
}

// classifyAndReport is the error classifier from spec.md 4.6.2: it turns
// stderr text into per-file structured errors, applying the sensitive-
// resource suppression rules, and appends them to the summary sink.
//
// The rollback-warning paragraph is always emitted first: the apply may
// have partially succeeded even though the overall command failed.
func (d *Deployer) classifyAndReport(stderr string, submitted []*resource.Resource, opts Options) {
	d.Sink.AddParagraph(
		"WARNING: Any resources not mentioned in the error(s) below were likely created/updated. " +
			"You may wish to roll back this deploy.")

	sensitiveBasenames := sensitiveBasenameSet(submitted, opts.SensitiveFilenames)
	byBasename := resourcesByBasename(submitted)
	anySensitiveUncleared := anySensitiveUncleared(submitted)

	var unidentified []string

	for _, line := range strings.Split(stderr, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		files := badFilePattern.FindAllString(line, -1)
		if len(files) == 0 {
			unidentified = append(unidentified, line)
			continue
		}
		for _, f := range files {
			d.reportBadFile(f, line, sensitiveBasenames, byBasename)
		}
	}

	if len(unidentified) == 0 {
		return
	}
	if anySensitiveUncleared {
		d.Sink.AddParagraph("One or more unidentified errors occurred during deploy; details withheld because a sensitive resource was involved.")
		return
	}
	d.Sink.AddParagraph("Unidentified error(s):\n  " + strings.Join(unidentified, "\n  "))
}

func (d *Deployer) reportBadFile(
	extractedPath, line string,
	sensitiveBasenames map[string]struct{},
	byBasename map[string][]*resource.Resource,
) {
	base := sanitizeBasename(filepath.Base(extractedPath))
	if _, ok := byBasename[base]; !ok {
		// applyDir stages each file as "<index>-<basename>"; map it back.
		if orig := stagedNamePrefix.ReplaceAllString(base, ""); len(byBasename[orig]) > 0 {
			base = orig
		}
	}
	matches := byBasename[base]

	_, isSensitiveFile := sensitiveBasenames[base]
	cleared := false
	for _, r := range matches {
		if r.ServerDryRunValidated {
			cleared = true
		}
	}

	if isSensitiveFile && !cleared {
		d.Sink.AddParagraph(fmt.Sprintf("Invalid template: %s\n%s", base, suppressedMessage))
		return
	}

	content := templateContentFor(matches)
	if secretKindInYAML.MatchString(content) {
		content = "> Template content: Suppressed because it may contain a Secret"
	} else if content != "" {
		content = "> Template content:\n" + content
	}

	msg := fmt.Sprintf("Invalid template: %s\n%s", base, line)
	if content != "" {
		msg += "\n" + content
	}
	d.Sink.AddParagraph(msg)
}

// sanitizeBasename strips the trailing quote/colon/comma punctuation kubectl
// wraps around a quoted file path in its error text (e.g. `"file.yaml":`),
// so the extracted bad-file token matches the basename kept on Resource.
func sanitizeBasename(base string) string {
	return strings.TrimRight(base, "\":,")
}

func sensitiveBasenameSet(resources []*resource.Resource, configured map[string]struct{}) map[string]struct{} {
	set := make(map[string]struct{}, len(configured))
	for k := range configured {
		set[k] = struct{}{}
	}
	for _, r := range resources {
		if r.Sensitive {
			set[filepath.Base(r.FilePath)] = struct{}{}
		}
	}
	return set
}

func resourcesByBasename(resources []*resource.Resource) map[string][]*resource.Resource {
	out := make(map[string][]*resource.Resource)
	for _, r := range resources {
		base := filepath.Base(r.FilePath)
		out[base] = append(out[base], r)
	}
	return out
}

func anySensitiveUncleared(resources []*resource.Resource) bool {
	for _, r := range resources {
		if r.Sensitive && !r.ServerDryRunValidated {
			return true
		}
	}
	return false
}

func templateContentFor(matches []*resource.Resource) string {
	if len(matches) == 0 {
		return ""
	}
	raw, err := os.ReadFile(matches[0].FilePath)
	if err != nil {
		return string(matches[0].RawManifest)
	}
	return string(raw)
}
