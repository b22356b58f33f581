package aggregator

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"polescan/internal/detector"
	"polescan/internal/geo"
	"polescan/internal/logger"
	"polescan/internal/models"
	"polescan/internal/repository"
)

// numStripes is the size of the bucket lock pool.
const numStripes = 64

// bucketKey addresses one cell of the rounded-coordinate spatial index.
type bucketKey struct {
	Row int
	Col int
}

// poleEntry tracks a pole plus the running confidence-weighted sums its
// centroid is computed from.
type poleEntry struct {
	pole *models.Pole
	wLat float64
	wLon float64
	w    float64
}

// OfferResult describes what happened to one offered detection.
type OfferResult struct {
	PoleID  int64
	Created bool // a new pole was created
	Merged  bool // merged into an existing pole
	Skipped bool // duplicate dedup key, nothing changed
}

// Aggregator deduplicates detections into canonical poles. Candidate
// lookup is grid-bucketed by rounded lat/lon; the bucket size must exceed
// the merge radius so scanning the 3x3 neighborhood catches every true
// duplicate. Writes for nearby detections are serialized through striped
// bucket locks, not one global lock.
type Aggregator struct {
	mergeRadiusM float64
	bucketSize   float64

	poles      repository.PoleRepository
	detections repository.DetectionRepository
	logger     *logger.Logger

	seenMu sync.Mutex
	seen   map[string]struct{}

	indexMu sync.RWMutex
	index   map[bucketKey][]*poleEntry

	stripes [numStripes]sync.Mutex
}

// New builds an aggregator and loads existing poles and detections so a
// restarted pipeline continues against the same pole set.
func New(mergeRadiusM, bucketSizeDeg float64, poles repository.PoleRepository, detections repository.DetectionRepository, logger *logger.Logger) (*Aggregator, error) {
	// A bucket smaller than the radius would let true duplicates hide
	// outside the 3x3 neighborhood.
	radiusDeg := mergeRadiusM / geo.MetersPerDegreeLat
	if bucketSizeDeg <= radiusDeg {
		return nil, fmt.Errorf("bucket size %f deg must exceed merge radius %f deg", bucketSizeDeg, radiusDeg)
	}

	a := &Aggregator{
		mergeRadiusM: mergeRadiusM,
		bucketSize:   bucketSizeDeg,
		poles:        poles,
		detections:   detections,
		logger:       logger,
		seen:         make(map[string]struct{}),
		index:        make(map[bucketKey][]*poleEntry),
	}

	if err := a.load(); err != nil {
		return nil, err
	}

	return a, nil
}

// load rebuilds the in-memory index from the store.
func (a *Aggregator) load() error {
	active, err := a.poles.ListActive()
	if err != nil {
		return fmt.Errorf("failed to load poles: %w", err)
	}

	entries := make(map[int64]*poleEntry, len(active))
	for i := range active {
		p := active[i]
		entry := &poleEntry{pole: &p}
		entries[p.ID] = entry
		key := a.bucketFor(p.Lat, p.Lon)
		a.index[key] = append(a.index[key], entry)
	}

	stored, err := a.detections.All()
	if err != nil {
		return fmt.Errorf("failed to load detections: %w", err)
	}

	for _, d := range stored {
		a.seen[d.DedupKey] = struct{}{}
		if entry, ok := entries[d.PoleID]; ok {
			entry.w += d.Confidence
			entry.wLat += d.Lat * d.Confidence
			entry.wLon += d.Lon * d.Confidence
		}
	}

	a.logger.Info("Aggregator loaded %d pole(s) and %d prior detection(s)", len(active), len(stored))
	return nil
}

// BuildDetection projects a raw detection into a detection record with
// geographic point and stable dedup key.
func BuildDetection(tileID int64, raw detector.RawDetection, tile geo.BBox, imgWidth, imgHeight int) (*models.Detection, error) {
	if raw.Confidence < 0 || raw.Confidence > 1 {
		return nil, fmt.Errorf("confidence %f outside [0, 1]", raw.Confidence)
	}

	lat, lon, err := ProjectCenter(raw.X1, raw.Y1, raw.X2, raw.Y2, tile, imgWidth, imgHeight)
	if err != nil {
		return nil, err
	}

	return &models.Detection{
		TileID:     tileID,
		Class:      raw.Class,
		Confidence: raw.Confidence,
		X1:         raw.X1,
		Y1:         raw.Y1,
		X2:         raw.X2,
		Y2:         raw.Y2,
		Lat:        lat,
		Lon:        lon,
		DedupKey:   DedupKey(tileID, raw.Class, raw.X1, raw.Y1, raw.X2, raw.Y2),
	}, nil
}

// DedupKey is stable across re-runs of the same tile image: a retried
// tile producing identical detections maps to identical keys.
func DedupKey(tileID int64, class string, x1, y1, x2, y2 float64) string {
	return fmt.Sprintf("%d|%s|%.1f,%.1f,%.1f,%.1f", tileID, class, x1, y1, x2, y2)
}

// Offer routes one detection into the pole set: skip (duplicate key),
// merge (nearest pole within the radius) or create.
func (a *Aggregator) Offer(det *models.Detection) (OfferResult, error) {
	center := a.bucketFor(det.Lat, det.Lon)

	unlock := a.lockRegion(center)
	defer unlock()

	// Seen check happens under the region lock so two workers offering
	// the identical detection concurrently cannot both pass.
	a.seenMu.Lock()
	_, dup := a.seen[det.DedupKey]
	a.seenMu.Unlock()
	if dup {
		return OfferResult{Skipped: true}, nil
	}

	nearest := a.findNearest(det, center)

	if nearest != nil {
		if err := a.merge(nearest, det); err != nil {
			return OfferResult{}, err
		}
		a.markSeen(det.DedupKey)
		return OfferResult{PoleID: nearest.pole.ID, Merged: true}, nil
	}

	id, err := a.create(det)
	if err != nil {
		return OfferResult{}, err
	}
	a.markSeen(det.DedupKey)
	return OfferResult{PoleID: id, Created: true}, nil
}

// findNearest scans the 3x3 bucket neighborhood for the closest pole
// within the merge radius. Equidistant candidates resolve to the higher
// existing confidence, which keeps noisy tile-edge duplicates from
// spawning spurious poles.
func (a *Aggregator) findNearest(det *models.Detection, center bucketKey) *poleEntry {
	a.indexMu.RLock()
	defer a.indexMu.RUnlock()

	var best *poleEntry
	bestDist := math.Inf(1)

	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			key := bucketKey{Row: center.Row + dr, Col: center.Col + dc}
			for _, entry := range a.index[key] {
				d := geo.HaversineMeters(det.Lat, det.Lon, entry.pole.Lat, entry.pole.Lon)
				if d > a.mergeRadiusM {
					continue
				}
				if d < bestDist || (d == bestDist && best != nil && entry.pole.Confidence > best.pole.Confidence) {
					best = entry
					bestDist = d
				}
			}
		}
	}

	return best
}

// merge folds the detection into an existing pole: location becomes the
// confidence-weighted centroid of all contributions, confidence the
// maximum observed. The store is updated before in-memory state so a
// failed write leaves the pole untouched and the detection unclaimed.
func (a *Aggregator) merge(entry *poleEntry, det *models.Detection) error {
	newW := entry.w + det.Confidence
	newWLat := entry.wLat + det.Lat*det.Confidence
	newWLon := entry.wLon + det.Lon*det.Confidence

	updated := *entry.pole
	if newW > 0 {
		updated.Lat = newWLat / newW
		updated.Lon = newWLon / newW
	}
	updated.Confidence = math.Max(entry.pole.Confidence, det.Confidence)
	updated.DetectionCount = entry.pole.DetectionCount + 1

	if err := a.poles.Update(&updated); err != nil {
		return fmt.Errorf("failed to persist pole merge: %w", err)
	}

	det.PoleID = updated.ID
	if _, err := a.detections.Insert(det); err != nil {
		return fmt.Errorf("failed to persist detection: %w", err)
	}

	oldKey := a.bucketFor(entry.pole.Lat, entry.pole.Lon)
	newKey := a.bucketFor(updated.Lat, updated.Lon)

	*entry.pole = updated
	entry.w = newW
	entry.wLat = newWLat
	entry.wLon = newWLon

	if oldKey != newKey {
		a.rebucket(entry, oldKey, newKey)
	}

	return nil
}

// create persists a fresh pole seeded by the detection.
func (a *Aggregator) create(det *models.Detection) (int64, error) {
	pole := &models.Pole{
		Lat:            det.Lat,
		Lon:            det.Lon,
		Confidence:     det.Confidence,
		DetectionCount: 1,
	}

	id, err := a.poles.Insert(pole)
	if err != nil {
		return 0, fmt.Errorf("failed to persist pole: %w", err)
	}
	pole.ID = id

	det.PoleID = id
	if _, err := a.detections.Insert(det); err != nil {
		return 0, fmt.Errorf("failed to persist detection: %w", err)
	}

	entry := &poleEntry{
		pole: pole,
		w:    det.Confidence,
		wLat: det.Lat * det.Confidence,
		wLon: det.Lon * det.Confidence,
	}

	a.indexMu.Lock()
	key := a.bucketFor(pole.Lat, pole.Lon)
	a.index[key] = append(a.index[key], entry)
	a.indexMu.Unlock()

	return id, nil
}

func (a *Aggregator) rebucket(entry *poleEntry, oldKey, newKey bucketKey) {
	a.indexMu.Lock()
	defer a.indexMu.Unlock()

	entries := a.index[oldKey]
	for i, e := range entries {
		if e == entry {
			a.index[oldKey] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	a.index[newKey] = append(a.index[newKey], entry)
}

func (a *Aggregator) markSeen(key string) {
	a.seenMu.Lock()
	a.seen[key] = struct{}{}
	a.seenMu.Unlock()
}

func (a *Aggregator) bucketFor(lat, lon float64) bucketKey {
	return bucketKey{
		Row: int(math.Floor(lat / a.bucketSize)),
		Col: int(math.Floor(lon / a.bucketSize)),
	}
}

// lockRegion acquires the lock stripes covering the 3x3 neighborhood of
// the center bucket, in sorted order so overlapping regions cannot
// deadlock. A merged pole's centroid stays inside the locked region
// because it lies between the detection and a pole already within it.
func (a *Aggregator) lockRegion(center bucketKey) (unlock func()) {
	stripeSet := make(map[int]struct{}, 9)
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			stripeSet[stripeFor(bucketKey{Row: center.Row + dr, Col: center.Col + dc})] = struct{}{}
		}
	}

	stripes := make([]int, 0, len(stripeSet))
	for s := range stripeSet {
		stripes = append(stripes, s)
	}
	sort.Ints(stripes)

	for _, s := range stripes {
		a.stripes[s].Lock()
	}

	return func() {
		for i := len(stripes) - 1; i >= 0; i-- {
			a.stripes[stripes[i]].Unlock()
		}
	}
}

func stripeFor(key bucketKey) int {
	h := uint64(key.Row)*2654435761 + uint64(key.Col)*40503
	return int(h % numStripes)
}
