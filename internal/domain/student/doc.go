// Package student содержит доменную модель ученика класса.
//
// Пакет определяет:
//
//   - Student - ученик с подзаписями участия, контактов, увлечений и пропусков
//   - Participation - счётчики ответов и производный вес выбора
//   - Connections - трекер личных контактов (MGC)
//   - Registry - журнал учеников, единственный владелец записей
//
// # Инварианты
//
//	totalCalls == correctAnswers + incorrectAnswers
//	totalMGCs == len(mgcHistory), не больше одной записи MGC на дату
//
// Вес выбора производный: его пересчитывает Participation.Record,
// сбрасывает ResetWeight. Снаружи он не принимается (см. Student.Sanitize).
//
// # Пример
//
//	reg := student.NewRegistry(nil)
//	res, err := reg.Import([]student.ImportRow{
//	    {FirstName: "Alice", LastName: "Smith", Grade: 4},
//	}, uuid.NewString, time.Now())
//
//	s := res.Added[0]
//	_ = s.RecordOutcome(student.OutcomeIncorrect, "Math") // weight 1.3
package student
