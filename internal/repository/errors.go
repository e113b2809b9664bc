package repository

import (
	"errors"

	"github.com/lib/pq"

	"github.com/hitoshi/schoolgate/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// constraintFields は一意制約名とAPIエラーに表示する項目名の対応。
var constraintFields = map[string]string{
	"students_enrollment_key": "matrícula",
	"guardians_code_key":      "código QR del padre",
	"operators_email_key":     "email",
}

// translateUniqueViolation は一意制約違反をDUPLICATE_KEYのAPIErrorに変換する。
// それ以外のエラーはそのまま返す。
func translateUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	field, ok := constraintFields[pqErr.Constraint]
	if !ok {
		field = pqErr.Constraint
	}
	apiErr := model.NewDuplicateKeyError(field)
	apiErr.Err = err
	return apiErr
}
