package powermon

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/TheCacophonyProject/dc-powermon/stats"
	"golang.org/x/term"
)

const consoleHeader = "   V_bus     V_shunt    I_shunt     P_shunt   |  avg V_bus  avg V_shunt avg I_shunt  avg P_shunt\n"

// Console writes a live readout that overwrites itself on every sample.
type Console struct {
	w        *bufio.Writer
	enabled  bool
	rendered bool
}

func NewConsole(w io.Writer, enabled bool) *Console {
	return &Console{w: bufio.NewWriter(w), enabled: enabled}
}

// consoleEnabled decides if the live readout should be shown. In "auto" mode
// it is only shown when stdout is a terminal, so logs under systemd stay clean.
func consoleEnabled(mode string) (bool, error) {
	switch mode {
	case "auto", "":
		return term.IsTerminal(int(os.Stdout.Fd())), nil
	case "always":
		return true, nil
	case "never":
		return false, nil
	default:
		return false, fmt.Errorf("unknown console mode '%s', use auto, always or never", mode)
	}
}

func (c *Console) Header() {
	if !c.enabled {
		return
	}
	c.w.WriteString(consoleHeader)
	c.w.Flush()
}

// Render overwrites the current line with the latest sample and averages.
func (c *Console) Render(s stats.Sample, st stats.Stats) {
	if !c.enabled {
		return
	}
	fmt.Fprintf(c.w, " %6.2f V  %6.2f mV %7.2f mA  %7.2f mW  |  %6.2f V   %6.2f mV  %7.2f mA  %7.2f mW\r",
		s[stats.BusVoltage], s[stats.ShuntVoltage], s[stats.ShuntCurrent], s[stats.ShuntPower],
		st.Avg(stats.BusVoltage), st.Avg(stats.ShuntVoltage), st.Avg(stats.ShuntCurrent), st.Avg(stats.ShuntPower))
	c.w.Flush()
	c.rendered = true
}

// Finish ends the live line so following output starts on a new line.
func (c *Console) Finish() error {
	if c.rendered {
		c.w.WriteString("\n")
		c.rendered = false
	}
	return c.w.Flush()
}
