package audit

import (
	"sync"

	"github.com/edirhub/verify-backend/pkg/models"
)

type worker struct {
	id    int
	ch    <-chan models.AuditRecord
	trail *Trail
}

func newWorker(id int, ch <-chan models.AuditRecord, trail *Trail) worker {
	return worker{id: id, ch: ch, trail: trail}
}

func (w worker) do(rec models.AuditRecord) {
	log.Debugf("[W%d]: writing %s", w.id, rec.ID)
	if err := w.trail.write(rec); err != nil {
		log.Errorf("[W%d]: %s cannot be written: %v", w.id, rec.ID, err)
		return
	}
	log.Debugf("[W%d]: done writing %s", w.id, rec.ID)
}

func (w worker) Start(wg *sync.WaitGroup) {
	defer wg.Done()
	for rec := range w.ch {
		w.do(rec)
	}
	log.Debugf("[W%d]: done processing all", w.id)
}
