// Renders stories into the story file format.

package story

import (
	"bufio"
	"cmp"
	"io"
	"slices"
	"strconv"
	"strings"
)

// Serialize renders the stories of one project as a story file.
//
// The output only depends on the set of stories, never on their order in the
// slice, so repeated exports of an unchanged project are byte-identical. An
// empty slice renders as the empty string.
func Serialize(stories []*Story, project string) (string, error) {
	var sb strings.Builder
	if err := Write(&sb, stories, project); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Write streams the story file of one project to w.
//
// Inputs are fully validated before the first byte is written.
func Write(w io.Writer, stories []*Story, project string) error {
	groups, err := Group(stories, project)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return nil
	}
	bw := bufio.NewWriter(w)
	for i, g := range groups {
		if i != 0 {
			_ = bw.WriteByte('\n')
		}
		_, _ = bw.WriteString(HeaderMarker)
		_, _ = bw.WriteString(escape(g.Intent))
		_ = bw.WriteByte('\n')
		for _, u := range g.Utterances {
			if u == "" {
				_, _ = bw.WriteString(strings.TrimRight(UtteranceMarker, " "))
			} else {
				_, _ = bw.WriteString(UtteranceMarker)
				_, _ = bw.WriteString(escape(u))
			}
			_ = bw.WriteByte('\n')
		}
	}
	// bufio.Writer keeps the first error; Flush reports it.
	return bw.Flush()
}

// Group merges the stories of one project by intent, the way they are
// rendered in a story file.
//
// Groups are sorted by intent using bytewise comparison. Inside a group,
// stories are ordered by ID, with identical IDs ordered by their utterances,
// and their utterances are concatenated. Returned stories carry the project
// and a zero ID.
func Group(stories []*Story, project string) ([]*Story, error) {
	for _, s := range stories {
		if s == nil {
			return nil, &InvalidInputError{Reason: "nil story"}
		}
		if s.Project != project {
			return nil, &InvalidInputError{StoryID: s.ID, Reason: "project " + strconv.Quote(s.Project) + " does not match " + strconv.Quote(project)}
		}
		if s.Intent == "" {
			return nil, &InvalidInputError{StoryID: s.ID, Reason: "empty intent"}
		}
	}
	sorted := slices.Clone(stories)
	slices.SortFunc(sorted, compareStories)

	var groups []*Story
	for _, s := range sorted {
		if n := len(groups); n == 0 || groups[n-1].Intent != s.Intent {
			groups = append(groups, &Story{Project: project, Intent: s.Intent, Utterances: []string{}})
		}
		g := groups[len(groups)-1]
		g.Utterances = append(g.Utterances, s.Utterances...)
	}
	return groups, nil
}

func compareStories(a, b *Story) int {
	if c := strings.Compare(a.Intent, b.Intent); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ID, b.ID); c != 0 {
		return c
	}
	return slices.Compare(a.Utterances, b.Utterances)
}
