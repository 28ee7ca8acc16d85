// Parses story files back into stories.

package story

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Deserialize parses a story file.
//
// Returned stories have a zero ID and an empty project: the caller knows which
// project the text belongs to. Any grammar violation is reported as a
// *MalformedFormatError carrying the position of the offending byte.
func Deserialize(text string) ([]*Story, error) {
	return Read(strings.NewReader(text))
}

// Read parses a story file from r.
func Read(r io.Reader) ([]*Story, error) {
	p := parser{r: bufio.NewReader(r)}
	return p.parse()
}

type parserState int

const (
	// stateSeparated is the state at the start of the file and after a blank
	// line: only a header or another blank line may follow.
	stateSeparated parserState = iota
	// stateBlock is the state after a header or an utterance.
	stateBlock
)

type parser struct {
	r       *bufio.Reader
	line    int
	state   parserState
	stories []*Story
}

func (p *parser) parse() ([]*Story, error) {
	p.stories = []*Story{}
	for {
		raw, err := p.r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to read story file: %w", err)
		}
		if raw == "" && err != nil {
			return p.stories, nil
		}
		p.line++
		if p.line == 1 && strings.HasPrefix(raw, byteOrderMark) {
			return nil, malformed(1, 1, "byte order mark is not allowed")
		}
		if perr := p.parseLine(strings.TrimRight(strings.TrimSuffix(raw, "\n"), trailingSpace)); perr != nil {
			return nil, perr
		}
		if err != nil {
			return p.stories, nil
		}
	}
}

func (p *parser) parseLine(line string) error {
	switch {
	case line == "":
		p.state = stateSeparated
		return nil
	case strings.HasPrefix(line, "##"):
		if p.state == stateBlock {
			return malformed(p.line, 1, "header must be preceded by a blank line")
		}
		return p.parseHeader(line)
	case p.state == stateSeparated:
		return malformed(p.line, 1, "non-blank line outside of any block")
	case line == strings.TrimRight(UtteranceMarker, " "):
		s := p.stories[len(p.stories)-1]
		s.Utterances = append(s.Utterances, "")
		return nil
	case strings.HasPrefix(line, UtteranceMarker):
		u, err := unescape(line[len(UtteranceMarker):], p.line, len(UtteranceMarker)+1)
		if err != nil {
			return err
		}
		s := p.stories[len(p.stories)-1]
		s.Utterances = append(s.Utterances, u)
		return nil
	default:
		return malformed(p.line, 1, "expected an utterance line starting with %q", UtteranceMarker)
	}
}

func (p *parser) parseHeader(line string) error {
	if !strings.HasPrefix(line, HeaderMarker) {
		if line == strings.TrimRight(HeaderMarker, " ") {
			return malformed(p.line, len(line)+1, "empty intent name")
		}
		return malformed(p.line, len(HeaderMarker), "header marker must be followed by a space")
	}
	intent, err := unescape(line[len(HeaderMarker):], p.line, len(HeaderMarker)+1)
	if err != nil {
		return err
	}
	if intent == "" {
		return malformed(p.line, len(HeaderMarker)+1, "empty intent name")
	}
	p.stories = append(p.stories, &Story{Intent: intent, Utterances: []string{}})
	p.state = stateBlock
	return nil
}
