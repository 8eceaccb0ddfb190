package server

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

//go:embed help.txt
var builtinHelp string

// HelpFile holds help entries parsed from a topic file. Entries are
// separated by lines starting with "& topicname".
type HelpFile struct {
	Entries map[string]string // lowercase topic -> text
}

// ParseHelp reads a help topic file. Several "& TOPIC" lines in a row
// share the body that follows them.
func ParseHelp(r io.Reader) (*HelpFile, error) {
	hf := &HelpFile{Entries: make(map[string]string)}
	scanner := bufio.NewScanner(r)

	var topics []string
	var buf strings.Builder
	save := func() {
		text := strings.TrimRight(buf.String(), "\n ")
		for _, t := range topics {
			hf.Entries[strings.ToLower(t)] = text
		}
	}

	for scanner.Scan() {
		line := scanner.Text()
		if topic, ok := strings.CutPrefix(line, "& "); ok {
			if buf.Len() == 0 && len(topics) > 0 {
				topics = append(topics, strings.TrimSpace(topic))
				continue
			}
			save()
			topics = []string{strings.TrimSpace(topic)}
			buf.Reset()
			continue
		}
		if len(topics) > 0 {
			buf.WriteString(line)
			buf.WriteByte('\n')
		}
	}
	save()
	return hf, scanner.Err()
}

// Lookup finds an entry by exact topic, then by the shortest topic that
// starts with the argument. A topic with * or ? lists the matching topics.
func (hf *HelpFile) Lookup(topic string) string {
	topic = strings.ToLower(strings.TrimSpace(topic))
	if topic == "" {
		topic = "help"
	}

	if strings.ContainsAny(topic, "*?") {
		var matches []string
		for key := range hf.Entries {
			if ok, _ := path.Match(topic, key); ok {
				matches = append(matches, key)
			}
		}
		if len(matches) == 0 {
			return ""
		}
		sort.Strings(matches)
		return fmt.Sprintf("Here are the entries which match '%s':\n  %s", topic, strings.Join(matches, "  "))
	}

	if text, ok := hf.Entries[topic]; ok {
		return text
	}
	var best string
	for key := range hf.Entries {
		if strings.HasPrefix(key, topic) && (best == "" || len(key) < len(best)) {
			best = key
		}
	}
	if best != "" {
		return hf.Entries[best]
	}
	return ""
}

func mustBuiltinHelp() *HelpFile {
	hf, err := ParseHelp(strings.NewReader(builtinHelp))
	if err != nil {
		panic(fmt.Sprintf("help.txt: %v", err))
	}
	return hf
}

// cmdHelp lists commands, or shows one help topic.
func cmdHelp(g *Game, d *Descriptor, args string, _ []string) {
	if args != "" {
		text := g.Help.Lookup(args)
		if text == "" {
			d.Send(fmt.Sprintf("No entry for '%s'.", args))
			return
		}
		d.Send(text)
		return
	}

	var lines []string
	for _, cmd := range g.Commands {
		if cmd.Help != "" {
			lines = append(lines, "  "+cmd.Help)
		}
	}
	sort.Slice(lines, func(i, j int) bool { return strings.ToLower(lines[i]) < strings.ToLower(lines[j]) })
	d.Send("Commands:")
	for _, l := range lines {
		d.Send(l)
	}
	d.Send("While a game is running, type its moves directly, e.g. \"accept\", \"rock\" or \"b2\".")
	d.Send("\"help <topic>\" explains a game or command, e.g. \"help rps\".")
}
