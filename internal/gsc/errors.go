package gsc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/api/googleapi"
)

// ErrorKind 错误分类（决定重试与传播策略）
type ErrorKind string

const (
	KindAuth            ErrorKind = "auth"             // 凭证无效/过期：整次运行致命
	KindQuota           ErrorKind = "quota"            // 配额超限：可重试
	KindTransient       ErrorKind = "transient"        // 网络瞬时故障：可重试
	KindInvalidProperty ErrorKind = "invalid_property" // 站点被移除或无权限：停用该站点，不重试
	KindStorage         ErrorKind = "storage"          // 存储写入失败：该站点中止，运行继续
)

// Error 带分类的同步错误
type Error struct {
	Kind ErrorKind
	Site string // 出错站点（发现阶段为空）
	Err  error
}

func (e *Error) Error() string {
	if e.Site != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Site, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf 取错误分类，未分类错误按瞬时故障处理
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}

// IsRetryable 仅配额超限与网络瞬时故障可重试
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindQuota || k == KindTransient
}

// Classify 将API调用错误归入分类（GSC的403分rate/quota与无权限两种语义）
func Classify(site string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401:
			return &Error{Kind: KindAuth, Site: site, Err: err}
		case apiErr.Code == 429:
			return &Error{Kind: KindQuota, Site: site, Err: err}
		case apiErr.Code == 403:
			if isQuotaReason(apiErr) {
				return &Error{Kind: KindQuota, Site: site, Err: err}
			}
			return &Error{Kind: KindInvalidProperty, Site: site, Err: err}
		case apiErr.Code == 404:
			return &Error{Kind: KindInvalidProperty, Site: site, Err: err}
		case apiErr.Code >= 500:
			return &Error{Kind: KindTransient, Site: site, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransient, Site: site, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Kind: KindTransient, Site: site, Err: err}
	}
	return &Error{Kind: KindTransient, Site: site, Err: err}
}

// isQuotaReason 403下细分：rateLimitExceeded/quotaExceeded/userRateLimitExceeded为配额类
func isQuotaReason(apiErr *googleapi.Error) bool {
	for _, e := range apiErr.Errors {
		reason := strings.ToLower(e.Reason)
		if strings.Contains(reason, "quota") || strings.Contains(reason, "ratelimit") {
			return true
		}
	}
	return false
}

// StorageErr 存储层错误包装（入库失败时由编排器打标）
func StorageErr(site string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindStorage, Site: site, Err: err}
}
