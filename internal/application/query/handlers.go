package query

// Handlers объединяет все обработчики запросов.
type Handlers struct {
	Session  *GetSessionStatusHandler
	Students *StudentsHandler
	Summary  *GetSummaryHandler
	Schedule *ScheduleHandler
	Export   *ExportHandler
}

// NewHandlers создаёт обработчики над одним источником.
func NewHandlers(source Source, cache Cache, clock Clock) *Handlers {
	return &Handlers{
		Session:  NewGetSessionStatusHandler(source, clock),
		Students: NewStudentsHandler(source, clock),
		Summary:  NewGetSummaryHandler(source, cache, clock),
		Schedule: NewScheduleHandler(source, clock),
		Export:   NewExportHandler(source, clock),
	}
}
