// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package streamer

// efficiencyAverageNbFrames is the number of frames the efficiency estimate
// averages over.
const efficiencyAverageNbFrames = 15

// efficiencyWindow is a rolling per-frame record of received fragments and
// how many of them carried new data. The cursor advances once per observed
// frame transition, not per wall-clock interval. Synchronization is the
// caller's concern (the reader holds the ack packet lock).
type efficiencyWindow struct {
	nbUseful [efficiencyAverageNbFrames]int
	nbTotal  [efficiencyAverageNbFrames]int
	index    int
}

// rotate advances the cursor to a fresh slot for the next frame.
func (w *efficiencyWindow) rotate() {
	w.index = (w.index + 1) % efficiencyAverageNbFrames
	w.nbTotal[w.index] = 0
	w.nbUseful[w.index] = 0
}

// observe records one received fragment; useful marks a first-seen fragment.
func (w *efficiencyWindow) observe(useful bool) {
	w.nbTotal[w.index]++
	if useful {
		w.nbUseful[w.index]++
	}
}

// sums returns the window totals.
func (w *efficiencyWindow) sums() (total, useful int) {
	for i := 0; i < efficiencyAverageNbFrames; i++ {
		total += w.nbTotal[i]
		useful += w.nbUseful[i]
	}
	return total, useful
}
