package board

// LED command frames for the write characteristic. The layout is not
// documented by the vendor; these were captured from the official app and
// are treated as best-effort: a failed write is logged and never surfaces
// to the scoring path.

// LEDPattern is a small fixed-layout command frame.
type LEDPattern []byte

var (
	// LEDWave runs the rainbow wave animation.
	LEDWave = LEDPattern{0x4c, 0x45, 0x44, 0x00, 0x01}
	// LEDHit flashes the ring green, the official app's hit acknowledgment.
	LEDHit = LEDPattern{0x4c, 0x45, 0x44, 0x01, 0x02}
	// LEDMiss flashes the ring red.
	LEDMiss = LEDPattern{0x4c, 0x45, 0x44, 0x02, 0x02}
	// LEDOff turns the ring off.
	LEDOff = LEDPattern{0x4c, 0x45, 0x44, 0xff, 0x00}
)

// FlashLEDs writes an LED command to the board. Best-effort: returns
// without error when no write characteristic was discovered or the write
// fails, since LED feedback must never block or break throw streaming.
func (b *Board) FlashLEDs(pattern LEDPattern) {
	b.mu.Lock()
	client := b.client
	char := b.writeChar
	b.mu.Unlock()

	if client == nil || char == nil {
		return
	}

	if err := client.WriteCharacteristic(char, pattern, false); err != nil {
		b.logger.WithError(err).Debug("LED write failed")
	}
}
