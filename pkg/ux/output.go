// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides rich terminal output styling for the PromptLab CLI.
package ux

import (
	"fmt"
	"os"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
)

// PromptLab color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, passing verdicts
	ColorTealPrimary = lipgloss.Color("#20B9B4") // main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // borders, accents

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#2C4A54")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// plain switches every helper to unstyled machine-readable output. Toggled
// once at startup; reads are atomic so helpers stay goroutine-safe.
var plain atomic.Bool

func init() {
	if os.Getenv("NO_COLOR") != "" {
		plain.Store(true)
	}
}

// SetPlain forces or clears plain output mode.
func SetPlain(v bool) { plain.Store(v) }

// Plain reports whether plain output mode is active.
func Plain() bool { return plain.Load() }

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	if Plain() {
		return string(i)
	}
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Title prints a styled title
func Title(text string) {
	if Plain() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func Success(text string) {
	if Plain() {
		fmt.Fprintf(os.Stdout, "OK: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message
func Warning(text string) {
	if Plain() {
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message
func Error(text string) {
	if Plain() {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational message
func Info(text string) {
	if Plain() {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text
func Muted(text string) {
	if Plain() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// Box prints titled content in a rounded box
func Box(title, content string) {
	if Plain() {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	boxStyle := Styles.Box.Width(60)
	titleLine := Styles.Title.Render(title)
	fmt.Println(boxStyle.Render(titleLine + "\n" + content))
}

// VerdictLine prints one evaluator verdict with its score.
//
// The threshold line every evaluator shares: passing verdicts get the
// success icon, failing ones the error icon, and feedback renders muted
// after the score.
func VerdictLine(evaluatorKey string, score float64, passed bool, feedback string) {
	if Plain() {
		verdict := "FAIL"
		if passed {
			verdict = "PASS"
		}
		fmt.Printf("%s\t%s\t%.1f\t%s\n", verdict, evaluatorKey, score, feedback)
		return
	}
	icon := IconError
	if passed {
		icon = IconSuccess
	}
	line := fmt.Sprintf("%s %s %s", icon.Render(), Styles.Bold.Render(evaluatorKey),
		fmt.Sprintf("%.1f/100", score))
	if feedback != "" {
		line += " " + Styles.Muted.Render("("+feedback+")")
	}
	fmt.Println(line)
}

// VariantLine prints one variant's summary statistics.
func VariantLine(name string, count int, mean, stdDev float64, leader bool) {
	if Plain() {
		fmt.Printf("%s\tn=%d\tmean=%.4f\tstddev=%.4f\n", name, count, mean, stdDev)
		return
	}
	marker := " "
	if leader {
		marker = IconArrow.Render()
	}
	fmt.Printf("%s %s  n=%d  mean=%.4f  stddev=%.4f\n",
		marker, Styles.Highlight.Render(name), count, mean, stdDev)
}

// Verdict prints the experiment-level conclusion.
func Verdict(winner string, pValue, improvementPct float64, significant bool) {
	if winner == "" {
		Muted("No winner yet: not enough variant data.")
		return
	}
	msg := fmt.Sprintf("winner %s (p=%.4f, +%.2f%%)", winner, pValue, improvementPct)
	if significant {
		Success(msg)
		return
	}
	Warning(msg + " - not yet significant")
}
