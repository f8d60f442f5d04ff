package viewport

import "time"

// Timer 可取消的单次定时器
type Timer interface {
	Stop() bool
}

// Clock 提供当前时间和单次定时器，测试中替换为手动推进的实现
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock 基于 time 包的时钟
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
