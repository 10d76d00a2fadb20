package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"

	statusLabelWidth = 20
	statusIndent     = "  "
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var kindStyles = [...]struct{ label, color string }{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

func (k statusKind) label() string { return kindStyles[k].label }
func (k statusKind) color() string { return kindStyles[k].color }

// statusKindFromSeverity maps the severities used on the wire ("ok",
// "warn", "error", anything else is info).
func statusKindFromSeverity(severity string) statusKind {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "ok":
		return statusOK
	case "warn", "warning":
		return statusWarn
	case "error":
		return statusError
	}
	return statusInfo
}

// jobStatusKind colours job states: computing is the healthy steady state,
// interrupted jobs need attention.
func jobStatusKind(status string) statusKind {
	switch status {
	case "computing", "finished":
		return statusOK
	case "downloading_model":
		return statusWarn
	case "interrupted":
		return statusError
	}
	return statusInfo
}

var titleCaser = cases.Title(language.English)

// titleLabel turns wire values such as "downloading_model" into "Downloading Model".
func titleLabel(value string) string {
	value = strings.TrimSpace(strings.ReplaceAll(value, "_", " "))
	if value == "" {
		return "-"
	}
	return titleCaser.String(value)
}

// renderStatusLine formats "  Label:   [KIND] message", coloured as a whole.
func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	badge := "[" + kind.label() + "]"
	if message != "" {
		badge += " " + message
	}
	return paint(fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", badge), kind.color(), colorize)
}

func renderSectionHeader(title string, colorize bool) []string {
	heading := "== " + strings.TrimSpace(title) + " =="
	return []string{
		paint(heading, ansiBlue, colorize),
		paint(strings.Repeat("-", len(heading)), ansiBlue, colorize),
	}
}

func paint(text, color string, colorize bool) string {
	if !colorize || color == "" {
		return text
	}
	return color + text + ansiReset
}

// shouldColorize is true only for terminals; pipes and buffers stay plain.
func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
