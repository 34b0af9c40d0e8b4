package webhook

import (
	"errors"
	"strings"
)

// ErrorClass 错误分类，显式携带可重试性，替代按错误文案猜测的做法
type ErrorClass int

const (
	ClassTransient ErrorClass = iota // 可重试：网关查询失败、存储超时、唯一键竞争
	ClassValidation                  // 报文缺字段或格式错误
	ClassAuth                        // 令牌校验失败
	ClassNotFound                    // 网关客户找不到对应账户
	ClassCriticalData                // 套餐无法解析，需人工修正
)

type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string {
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

func classify(class ErrorClass, err error) *ClassifiedError {
	return &ClassifiedError{Class: class, Err: err}
}

func Validation(err error) *ClassifiedError   { return classify(ClassValidation, err) }
func Auth(err error) *ClassifiedError         { return classify(ClassAuth, err) }
func NotFound(err error) *ClassifiedError     { return classify(ClassNotFound, err) }
func CriticalData(err error) *ClassifiedError { return classify(ClassCriticalData, err) }
func Transient(err error) *ClassifiedError    { return classify(ClassTransient, err) }

// IsRetryable 判断错误是否值得网关重试。优先使用显式分类，
// 未分类的存储层错误退回到文案启发式判断。
func IsRetryable(err error) bool {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Class == ClassTransient
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"not found", "invalid", "duplicate", "missing"} {
		if strings.Contains(msg, marker) {
			return false
		}
	}
	return true
}

// HandleResult 事件处理结果，控制器据此映射HTTP响应
type HandleResult struct {
	Success   bool
	Duplicate bool
	EventID   string
	Err       error
	Retryable bool
}
