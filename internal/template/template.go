// Package template discovers and parses the manifest files a deploy task
// consumes. It never renders templates - by the time paths reach here the
// templating engine (an external collaborator, out of scope) has already
// materialized concrete manifest files on disk.
package template

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/yaml"

	internalerrors "github.com/hashmap-kz/katomik-global-deploy/internal/errors"
	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
)

var secretKindPattern = regexp.MustCompile(`(?m)kind:\s*Secret`)

const snippetLen = 200

// ResolveFiles expands an ordered list of file/directory paths into a
// deduplicated list of manifest files. Paths keep their argument order;
// each directory's entries are visited in name order (recursively when
// recursive is true); only .yaml/.yml files are kept.
func ResolveFiles(paths []string, recursive bool) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string

	add := func(p string) {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		files = append(files, p)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("resolving template path %q: %w", p, err)
		}
		if !info.IsDir() {
			if isManifestFile(p) {
				add(p)
			}
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("reading template directory %q: %w", p, err)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
		for _, entry := range entries {
			full := filepath.Join(p, entry.Name())
			if entry.IsDir() {
				if !recursive {
					continue
				}
				sub, err := ResolveFiles([]string{full}, recursive)
				if err != nil {
					return nil, err
				}
				for _, s := range sub {
					add(s)
				}
				continue
			}
			if isManifestFile(full) {
				add(full)
			}
		}
	}

	return files, nil
}

func isManifestFile(p string) bool {
	ext := filepath.Ext(p)
	return ext == ".yaml" || ext == ".yml"
}

// Discover reads every resolved file and decodes it into resource.Resource
// values. A parse failure anywhere aborts the whole task with a
// InvalidTemplateError, file-attributed and content-snippeted where safe to
// do so. Two resources sharing (kind, name) is itself a validation error.
func Discover(paths []string, recursive bool) ([]*resource.Resource, error) {
	files, err := ResolveFiles(paths, recursive)
	if err != nil {
		return nil, err
	}

	var resources []*resource.Resource
	seenIdentity := make(map[string]string) // identity -> first file

	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, &internalerrors.InvalidTemplateError{File: file, Err: err}
		}

		docs, err := splitDocuments(raw)
		if err != nil {
			return nil, &internalerrors.InvalidTemplateError{File: file, Err: withSnippet(err, raw)}
		}

		for _, doc := range docs {
			r := resource.New(doc.GetKind(), doc.GetName(), doc.GetAPIVersion(), file, mustYAML(doc))
			r.Namespace = doc.GetNamespace()
			r.Sensitive = doc.GetKind() == "Secret"

			identity := r.Identity()
			if prior, ok := seenIdentity[identity]; ok {
				return nil, &internalerrors.InvalidTemplateError{
					File: file,
					Err:  fmt.Errorf("duplicate resource %s also defined in %s", identity, prior),
				}
			}
			seenIdentity[identity] = file

			resources = append(resources, r)
		}
	}

	return resources, nil
}

type rawDoc = unstructured.Unstructured

func splitDocuments(raw []byte) ([]*rawDoc, error) {
	var docs []*rawDoc
	stream := utilyaml.NewYAMLOrJSONDecoder(bytes.NewReader(raw), 4096)
	for {
		obj := &unstructured.Unstructured{}
		if err := stream.Decode(obj); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if len(obj.Object) == 0 {
			continue
		}
		docs = append(docs, obj)
	}
	return docs, nil
}

func mustYAML(u *unstructured.Unstructured) []byte {
	b, err := yaml.Marshal(u.Object)
	if err != nil {
		return nil
	}
	return b
}

// withSnippet attaches a truncated content snippet to a parse error, unless
// the content looks like it might contain a Secret - per the same
// kind:\s*Secret detection rule used by the deployer's error classifier.
func withSnippet(err error, raw []byte) error {
	if secretKindPattern.Match(raw) {
		return fmt.Errorf("%w\n> Template content: Suppressed because it may contain a Secret", err)
	}
	snippet := raw
	if len(snippet) > snippetLen {
		snippet = snippet[:snippetLen]
	}
	return fmt.Errorf("%w\n> %s", err, string(snippet))
}
