package oob

// Telnet protocol constants used by OOB negotiation.
const (
	IAC  byte = 255 // Interpret As Command
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250 // Subnegotiation Begin
	SE   byte = 240 // Subnegotiation End

	TeloptGMCP byte = 201
)

// StripIAC removes telnet command sequences from a line of input and
// returns the remaining text plus the body of every GMCP subnegotiation
// found. Other control characters except tab are dropped.
func StripIAC(line string) (text string, gmcp [][]byte) {
	out := make([]byte, 0, len(line))
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c != IAC {
			if c >= 32 || c == '\t' {
				out = append(out, c)
			}
			continue
		}
		if i+1 >= len(line) {
			break
		}
		switch line[i+1] {
		case IAC:
			out = append(out, IAC)
			i++
		case SB:
			end := i + 2
			for end+1 < len(line) && !(line[end] == IAC && line[end+1] == SE) {
				end++
			}
			if end+1 < len(line) && i+2 < len(line) && line[i+2] == TeloptGMCP && i+3 <= end {
				gmcp = append(gmcp, []byte(line[i+3:end]))
			}
			i = end + 1
		case WILL, WONT, DO, DONT:
			i += 2
		default:
			i++
		}
	}
	return string(out), gmcp
}
