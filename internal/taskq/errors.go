package taskq

import "errors"

var (
	// ErrTaskNotFound — записи задачи нет (не создавалась или истёк TTL).
	ErrTaskNotFound = errors.New("taskq: task not found")

	// ErrTaskFailed — задача завершилась в FAILURE.
	ErrTaskFailed = errors.New("taskq: task failed")

	// ErrWaitTimeout — результат не получен до дедлайна ожидания.
	// Сама задача при этом продолжает исполняться.
	ErrWaitTimeout = errors.New("taskq: wait timeout")

	// ErrTimeLimitExceeded — исполнение превысило лимит времени.
	ErrTimeLimitExceeded = errors.New("taskq: time limit exceeded")

	// ErrUnknownTask — для имени задачи не зарегистрирован обработчик.
	ErrUnknownTask = errors.New("taskq: unknown task")
)
