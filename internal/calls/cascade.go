package calls

import "context"

// EventPurger removes event-log rows of deleted calls where the store has no
// foreign-key cascade.
type EventPurger interface {
	DeleteByCalls(ctx context.Context, callIDs []int64) error
}

// PatientCascade is the call-side view the patient admin surface needs.
type PatientCascade struct {
	Calls  Repository
	Events EventPurger
}

func (p PatientCascade) CountByPatient(ctx context.Context) (map[int64]int, error) {
	return p.Calls.CountByPatient(ctx)
}

func (p PatientCascade) DeleteByPatient(ctx context.Context, patientID int64) error {
	ids, err := p.Calls.DeleteByPatient(ctx, patientID)
	if err != nil {
		return err
	}
	if p.Events == nil || len(ids) == 0 {
		return nil
	}
	return p.Events.DeleteByCalls(ctx, ids)
}
