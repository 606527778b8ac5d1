// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"strings"

	"github.com/spf13/pflag"
)

// maxSuggestDistance is the largest edit distance still worth a
// "did you mean" hint.
const maxSuggestDistance = 3

// closest returns the candidate nearest to input within
// maxSuggestDistance, or "". Ties go to the earliest candidate.
func closest(input string, candidates []string) string {
	best, bestDistance := "", maxSuggestDistance+1
	for _, candidate := range candidates {
		if distance := levenshtein(input, candidate); distance < bestDistance {
			best, bestDistance = candidate, distance
		}
	}
	return best
}

// suggestCommand returns the subcommand name closest to unknown.
func suggestCommand(unknown string, commands []*Command) string {
	names := make([]string, len(commands))
	for i, command := range commands {
		names[i] = command.Name
	}
	return closest(unknown, names)
}

// suggestFlag returns "--name" for the defined flag closest to the
// first flag in args that flagSet does not know, or "".
func suggestFlag(args []string, flagSet *pflag.FlagSet) string {
	unknown, ok := firstUnknownFlag(args, flagSet)
	if !ok {
		return ""
	}
	var names []string
	flagSet.VisitAll(func(f *pflag.Flag) { names = append(names, f.Name) })
	if name := closest(unknown, names); name != "" {
		return "--" + name
	}
	return ""
}

// firstUnknownFlag returns the name, without dashes or value, of the
// first flag in args before "--" that flagSet does not define.
func firstUnknownFlag(args []string, flagSet *pflag.FlagSet) (string, bool) {
	for _, arg := range args {
		if arg == "--" {
			return "", false
		}
		if !strings.HasPrefix(arg, "-") {
			continue
		}
		name, _, _ := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if flagSet.Lookup(name) != nil {
			continue
		}
		if len(name) == 1 && flagSet.ShorthandLookup(name) != nil {
			continue
		}
		return name, true
	}
	return "", false
}

// levenshtein is the edit distance between a and b, computed over two
// rolling rows.
func levenshtein(a, b string) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	previous := make([]int, len(a)+1)
	current := make([]int, len(a)+1)
	for i := range previous {
		previous[i] = i
	}
	for j := 1; j <= len(b); j++ {
		current[0] = j
		for i := 1; i <= len(a); i++ {
			substitution := previous[i-1]
			if a[i-1] != b[j-1] {
				substitution++
			}
			current[i] = min(previous[i]+1, current[i-1]+1, substitution)
		}
		previous, current = current, previous
	}
	return previous[len(a)]
}
