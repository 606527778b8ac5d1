// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package safeurl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/safenet-project/safenet/lib/neterr"
)

const (
	maxHostLen  = 255
	maxLabelLen = 63
)

type urlParts struct {
	subNames   []string
	body       string
	path       string
	version    uint64
	hasVersion bool
	query      []string
}

// splitURL breaks raw into sub-names, encoded body, path and query.
// The authority ends at the first '/' or '?'; the path ends at the
// first '?'. A '#' fragment is not recognised.
func splitURL(raw string) (urlParts, error) {
	var parts urlParts

	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return parts, neterr.E("safeurl.Decode", neterr.InvalidInput, fmt.Sprintf("%q has no scheme", raw), nil)
	}
	if scheme != Scheme {
		return parts, neterr.E("safeurl.Decode", neterr.InvalidInput,
			fmt.Sprintf("scheme %q is not %q", scheme, Scheme), nil)
	}

	host := rest
	tail := ""
	if i := strings.IndexAny(rest, "/?"); i >= 0 {
		host, tail = rest[:i], rest[i:]
	}

	pathPart, queryPart, hasQuery := strings.Cut(tail, "?")

	labels := strings.Split(host, ".")
	body := labels[len(labels)-1]
	subNames := labels[:len(labels)-1]
	if err := validateHost(subNames, body); err != nil {
		return parts, err
	}
	if err := validatePath(pathPart); err != nil {
		return parts, err
	}

	parts.subNames = nilIfEmpty(subNames)
	parts.body = body
	parts.path = pathPart

	if hasQuery && queryPart != "" {
		version, hasVersion, rest, err := splitVersion(strings.Split(queryPart, "&"))
		if err != nil {
			return parts, err
		}
		parts.version, parts.hasVersion, parts.query = version, hasVersion, rest
	}
	return parts, nil
}

// validateHost checks the DNS-style limits on the authority: at most
// 255 characters, labels of 1 to 63 characters.
func validateHost(subNames []string, body string) error {
	total := len(body)
	for _, label := range subNames {
		total += len(label) + 1
		if label == "" {
			return neterr.E("safeurl.Decode", neterr.InvalidInput, "empty sub-name (consecutive dots)", nil)
		}
		if len(label) > maxLabelLen {
			return neterr.E("safeurl.Decode", neterr.InvalidInput,
				fmt.Sprintf("sub-name %q exceeds %d characters", label, maxLabelLen), nil)
		}
		if strings.ContainsAny(label, "/?") {
			return neterr.E("safeurl.Decode", neterr.InvalidInput, fmt.Sprintf("invalid sub-name %q", label), nil)
		}
	}
	if total > maxHostLen {
		return neterr.E("safeurl.Decode", neterr.InvalidInput,
			fmt.Sprintf("name is %d characters, maximum is %d", total, maxHostLen), nil)
	}
	return nil
}

func validatePath(path string) error {
	if strings.Contains(path, "//") {
		return neterr.E("safeurl.Decode", neterr.InvalidInput, fmt.Sprintf("path %q contains an empty segment", path), nil)
	}
	return nil
}

// splitVersion extracts the first "v" parameter as the content
// version and returns the remaining parameters in order.
func splitVersion(params []string) (uint64, bool, []string, error) {
	var (
		version    uint64
		hasVersion bool
		rest       []string
	)
	for _, param := range params {
		if param == "" {
			continue
		}
		key, value := splitParam(param)
		if key == versionParam && !hasVersion {
			parsed, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return 0, false, nil, neterr.E("safeurl.Decode", neterr.InvalidInput,
					fmt.Sprintf("content version %q is not a 64-bit unsigned integer", value), nil)
			}
			version, hasVersion = parsed, true
			continue
		}
		rest = append(rest, param)
	}
	return version, hasVersion, rest, nil
}

func splitParam(param string) (string, string) {
	key, value, _ := strings.Cut(param, "=")
	return key, value
}
