// Package notify delivers user-facing notices: transient toasts and a
// persistent banner that stays until cleared.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Notifier receives notices from the engines.
type Notifier interface {
	// Toast shows a transient message.
	Toast(msg string)

	// Banner sets the persistent banner. An empty message clears it.
	Banner(msg string)
}

// Discard drops every notice.
type Discard struct{}

func (Discard) Toast(string)  {}
func (Discard) Banner(string) {}

// Quiet forwards banners to N and drops toasts.
type Quiet struct {
	N Notifier
}

func (q Quiet) Toast(string)      {}
func (q Quiet) Banner(msg string) { q.N.Banner(msg) }

// Writer prints notices to a stream.
type Writer struct {
	w      io.Writer
	toast  lipgloss.Style
	banner lipgloss.Style

	mu      sync.Mutex
	current string
}

// NewWriter creates a Writer. Styling follows the color support of w; plain
// buffers and pipes get unstyled text.
func NewWriter(w io.Writer) *Writer {
	r := lipgloss.NewRenderer(w)
	return &Writer{
		w:      w,
		toast:  r.NewStyle().Faint(true),
		banner: r.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
	}
}

// Toast implements Notifier.
func (n *Writer) Toast(msg string) {
	if msg == "" {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, n.toast.Render(msg))
}

// Banner implements Notifier. Repeating the current banner prints nothing.
func (n *Writer) Banner(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if msg == n.current {
		return
	}
	n.current = msg
	if msg == "" {
		return
	}
	fmt.Fprintln(n.w, n.banner.Render("! "+msg))
}

// Recorder keeps every notice in memory.
type Recorder struct {
	mu      sync.Mutex
	toasts  []string
	banner  string
	banners []string
}

// Toast implements Notifier.
func (r *Recorder) Toast(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, msg)
}

// Banner implements Notifier.
func (r *Recorder) Banner(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.banner = msg
	r.banners = append(r.banners, msg)
}

// Toasts returns every toast in order.
func (r *Recorder) Toasts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.toasts...)
}

// CurrentBanner returns the banner currently shown, "" when cleared.
func (r *Recorder) CurrentBanner() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.banner
}

// Banners returns every banner change in order, including clears.
func (r *Recorder) Banners() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.banners...)
}
