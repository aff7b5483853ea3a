package user

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/nao1215/hospital/pkg/httpclient"
)

// unknownCenterName はセンター名を解決できなかった場合に表示するプレースホルダー。
const unknownCenterName = "不明なセンター"

// 管理サービスへの確認結果を表すエラー。
// ハンドラはこのエラーをHTTPステータスに対応付ける。
var (
	// ErrCenterNotFound は指定されたセンターが存在しないことを表す。
	ErrCenterNotFound = errors.New("センターが存在しない")
	// ErrDoctorAssigned はユーザーにドクターが連携していることを表す。
	ErrDoctorAssigned = errors.New("ドクターが連携している")
	// ErrAdminUnavailable は管理サービスが一時的に利用できないことを表す。
	ErrAdminUnavailable = errors.New("管理サービスが利用できない")
)

// AdminClient は管理サービスへの確認呼び出しを行うクライアント。
// 呼び出しは常に1回きりで、リトライは行わない。
type AdminClient struct {
	client *httpclient.Client
}

// NewAdminClient はAdminClientを生成する。
func NewAdminClient(baseURL string) *AdminClient {
	return &AdminClient{client: httpclient.New(baseURL)}
}

// ValidateCenterExists は指定センターが管理サービスに存在することを確認する。
// 存在する場合はnil、存在しない場合はErrCenterNotFound、
// 管理サービスに到達できない場合はErrAdminUnavailableを返す。
func (a *AdminClient) ValidateCenterExists(ctx context.Context, centerID string) error {
	status, err := a.client.Head(ctx, "/admin/centers/"+url.PathEscape(centerID)+"/exists")
	if err != nil {
		log.Printf("センター存在確認エラー: center_id=%s, error=%v", centerID, err)
		return ErrAdminUnavailable
	}

	switch httpclient.ClassifyStatus(status) {
	case httpclient.OutcomeSuccess:
		return nil
	case httpclient.OutcomeNotFound:
		return ErrCenterNotFound
	default:
		return ErrAdminUnavailable
	}
}

// CheckDoctorAssigned は指定ユーザーにドクターが連携しているかを確認する。
// 判定は他の確認と逆向きになる。404はドクター未連携を意味し削除を続行できる。
// 2xxはドクターが存在することを意味しErrDoctorAssignedを返す。
// 管理サービスに到達できない場合はErrAdminUnavailableを返し、削除は行わない。
func (a *AdminClient) CheckDoctorAssigned(ctx context.Context, userID string) error {
	status, err := a.client.Head(ctx, "/admin/doctors/exists-by-user/"+url.PathEscape(userID))
	if err != nil {
		log.Printf("ドクター連携確認エラー: user_id=%s, error=%v", userID, err)
		return ErrAdminUnavailable
	}

	switch httpclient.ClassifyStatus(status) {
	case httpclient.OutcomeNotFound:
		// ドクター未連携。削除を続行できる。
		return nil
	case httpclient.OutcomeSuccess:
		return ErrDoctorAssigned
	default:
		return ErrAdminUnavailable
	}
}

// centerSummary は管理サービスが返すセンター情報。
type centerSummary struct {
	// ID はセンターの一意識別子。
	ID string `json:"id"`
	// Name はセンター名。
	Name string `json:"name"`
}

// ResolveCenterNames はセンターIDの一覧をセンター名に一括で解決する。
// 1回のリクエストで全IDを問い合わせ、IDからセンター名へのマップを返す。
// 解決に失敗した場合は空のマップを返し、エラーにはしない。
// マップに無いIDの表示にはunknownCenterNameを使用する。
func (a *AdminClient) ResolveCenterNames(ctx context.Context, centerIDs []string, includeDeleted bool) map[string]string {
	seen := make(map[string]bool, len(centerIDs))
	unique := make([]string, 0, len(centerIDs))
	for _, id := range centerIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return map[string]string{}
	}

	query := url.Values{}
	query.Set("ids", strings.Join(unique, ","))
	query.Set("includeDeleted", strconv.FormatBool(includeDeleted))

	var centers []centerSummary
	if err := a.client.GetJSON(ctx, "/admin/centers?"+query.Encode(), &centers); err != nil {
		log.Printf("センター名の一括解決エラー: %v", err)
		return map[string]string{}
	}

	names := make(map[string]string, len(centers))
	for _, c := range centers {
		names[c.ID] = c.Name
	}
	return names
}
