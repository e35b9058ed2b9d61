// Command watch follows a running trainer over its observer websocket and draws the
// farm in the terminal.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"

	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/observerproto"
	"github.com/LightBoat9/ITCS-4156-ML-Project/internal/render"
)

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "trainer base url")
		every   = flag.Int("every", 1, "show one frame every N ticks")
	)
	flag.Parse()

	base := strings.TrimRight(strings.TrimSpace(*baseURL), "/")
	boot, err := fetchBootstrap(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bootstrap:", err)
		os.Exit(1)
	}

	wsURL := "ws" + strings.TrimPrefix(base, "http") + "/admin/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()
	sub := observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version, EveryTicks: *every}
	if err := conn.WriteJSON(sub); err != nil {
		fmt.Fprintln(os.Stderr, "subscribe:", err)
		os.Exit(1)
	}

	app := tview.NewApplication()
	grid := tview.NewTextView().SetDynamicColors(true)
	grid.SetBorder(true).SetTitle(fmt.Sprintf(" %s ", boot.RunID))
	status := tview.NewTextView().SetDynamicColors(true)
	status.SetText(fmt.Sprintf("[yellow]waiting for frames[-]  grid %dx%d  budget %d  (q to quit)",
		boot.GridParams.Width, boot.GridParams.Height, boot.GridParams.GenerationBudget))

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(grid, boot.GridParams.Height+2, 0, false).
		AddItem(status, 0, 1, false)

	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyCtrlC || ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return ev
	})

	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				app.QueueUpdateDraw(func() {
					status.SetText(fmt.Sprintf("[red]disconnected:[-] %v  (q to quit)", err))
				})
				return
			}
			var f observerproto.FrameMsg
			if err := json.Unmarshal(msg, &f); err != nil || f.Type != "FRAME" {
				continue
			}
			app.QueueUpdateDraw(func() {
				grid.SetText(render.Tagged(f))
				status.SetText(statusLine(f))
			})
		}
	}()

	if err := app.SetRoot(layout, true).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func fetchBootstrap(base string) (observerproto.BootstrapResponse, error) {
	var boot observerproto.BootstrapResponse
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(base + "/admin/v1/observer/bootstrap")
	if err != nil {
		return boot, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return boot, fmt.Errorf("status %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&boot)
	return boot, err
}

func statusLine(f observerproto.FrameMsg) string {
	color := "green"
	switch f.Status {
	case "finished":
		color = "yellow"
	case "failed":
		color = "red"
	}
	last := f.LastAction
	if last == "" {
		last = "-"
	}
	return fmt.Sprintf("[%s]%s[-]  gen [white]%d[-]  step [white]%d[-]  eps [white]%.3f[-]  last %s (%+d)  state %v",
		color, f.Status, f.Generation, f.Step, f.Epsilon, last, f.LastReward, f.State)
}
