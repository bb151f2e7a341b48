package network

import (
	"errors"

	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/messages"
	"golang.org/x/sys/unix"
)

// PipeBuf is the largest write the kernel keeps atomic on a pipe.
const PipeBuf = 4096

// Notifier sends best-effort notifications on the notify pipes. A send never
// blocks: when nobody reads the pipe, or it is full, the notification is
// dropped and the client catches up on its next request.
type Notifier struct {
	base  string
	slots int
}

func NewNotifier(base string, slots int) *Notifier {
	return &Notifier{base: base, slots: slots}
}

// Send writes m to the notify pipe of slot and reports whether it was
// delivered.
func (n *Notifier) Send(slot int, m *messages.Message) bool {
	if slot < 0 || slot >= n.slots {
		return false
	}
	frame, err := messages.EncodeFrame(m)
	if err != nil {
		log.Error("Failed to encode %s notification: %v", m.Type, err)
		return false
	}
	if len(frame) > PipeBuf {
		log.Warn("Dropped %s notification for slot %d: %d bytes", m.Type, slot, len(frame))
		return false
	}

	// Raw descriptors keep the write non-blocking; os.File would park on
	// EAGAIN.
	path := Paths(n.base, slot).Notify
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if !errors.Is(err, unix.ENXIO) {
			log.Debug("Failed to open notify pipe for slot %d: %v", slot, err)
		}
		return false
	}
	defer unix.Close(fd)

	written, err := unix.Write(fd, frame)
	if err != nil {
		if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EPIPE) {
			log.Debug("Failed to write notification to slot %d: %v", slot, err)
		}
		return false
	}
	return written == len(frame)
}

func (n *Notifier) send(slot int, messageType string, payload interface{}) {
	m, err := messages.NewMessage(slot, messageType, payload)
	if err != nil {
		log.Error("Failed to build %s notification: %v", messageType, err)
		return
	}
	n.Send(slot, m)
}

func (n *Notifier) YourTurn(slot int, snap *types.GameSnapshot) {
	if slot < 0 {
		return
	}
	n.send(slot, messages.MessageTypeYourTurn, messages.YourTurn{State: snap})
}

// StateChanged sends snap to every Active slot except exclude.
func (n *Notifier) StateChanged(exclude int, snap *types.GameSnapshot) {
	for i := range snap.Players {
		p := &snap.Players[i]
		if p.State != "active" || p.Slot == exclude {
			continue
		}
		n.send(p.Slot, messages.MessageTypeStateBroadcast, messages.StateBroadcast{State: snap})
	}
}

func (n *Notifier) GameStarted(snap *types.GameSnapshot) {
	for i := range snap.Players {
		p := &snap.Players[i]
		if p.State != "active" {
			continue
		}
		n.send(p.Slot, messages.MessageTypeGameStarted, messages.GameStarted{State: snap})
	}
}

func (n *Notifier) GameOver(snap *types.GameSnapshot) {
	over := messages.GameOver{Winner: snap.Winner, State: snap}
	if w := snap.Player(snap.Winner); w != nil {
		over.WinnerName = w.Name
	}
	for i := range snap.Players {
		p := &snap.Players[i]
		if !p.Connected() {
			continue
		}
		n.send(p.Slot, messages.MessageTypeGameOver, over)
	}
}

func (n *Notifier) PlayerLeft(slot int, name string, snap *types.GameSnapshot) {
	left := messages.PlayerLeft{Slot: slot, Name: name, State: snap}
	for i := range snap.Players {
		p := &snap.Players[i]
		if !p.Connected() || p.Slot == slot {
			continue
		}
		n.send(p.Slot, messages.MessageTypePlayerLeft, left)
	}
}
