package rtconsole

import "sync"

// Marker is a point on the presentation layer's map, optionally annotated
// with weather readings.
type Marker struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Location    string  `json:"location,omitempty"`
	Temperature *Value  `json:"temperature,omitempty"`
	WindSpeed   *Value  `json:"wind_speed,omitempty"`
}

type Value struct {
	Value float64 `json:"value"`
	Units string  `json:"units"`
}

// Display holds the transient UI state populated as a side effect of tool
// calls. The presentation layer only reads it; tool handlers only write it.
// Reset on disconnect, unlike Memory.
type Display struct {
	mu     sync.RWMutex
	marker *Marker
	info   string
	image  string
}

func NewDisplay() *Display {
	return &Display{}
}

func (d *Display) Marker() *Marker {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.marker
}

func (d *Display) SetMarker(m *Marker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.marker = m
}

func (d *Display) Info() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// SetInfo sets the markdown shown in the information panel.
func (d *Display) SetInfo(markdown string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.info = markdown
}

func (d *Display) Image() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.image
}

func (d *Display) SetImage(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.image = url
}

func (d *Display) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.marker = nil
	d.info = ""
	d.image = ""
}
