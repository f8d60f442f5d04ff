// internal/models/location.go
package models

// 画布尺寸（地图像素）
const (
	MapWidth  = 2600.0
	MapHeight = 3500.0
)

// FocusZoom 跳转到地点时使用的缩放
const FocusZoom = 1.4

// DefaultLocationID 进入会话后首次居中的地点
const DefaultLocationID = "orbis"

// LocationKind 地点类型
type LocationKind string

const (
	LocationCity     LocationKind = "city"
	LocationForest   LocationKind = "forest"
	LocationRuins    LocationKind = "ruins"
	LocationLandmark LocationKind = "landmark"
	LocationSecret   LocationKind = "secret"
)

// Location 主要据点，坐标为画布百分比
type Location struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	X           float64      `json:"x"`
	Y           float64      `json:"y"`
	Kind        LocationKind `json:"type"`
}

// Locations 侧边栏中的全部地点
var Locations = []Location{
	{"orbis", "오르비스 왕성", "오르비스 제국의 수도이자 대륙의 중심입니다.", 22.69, 54.43, LocationCity},
	{"morning-farm", "아침햇살 농장", "황금빛 곡식이 자라는 평화로운 농경지입니다.", 25.77, 62.86, LocationLandmark},
	{"shade-hill", "나무 그늘 언덕", "여행자들이 잠시 쉬어가는 시원한 그늘이 있는 언덕입니다.", 12.31, 65.43, LocationLandmark},
	{"journey-hill", "여정의 언덕", "새로운 모험이 시작되는 탁 트인 언덕입니다.", 28.85, 73.00, LocationLandmark},
	{"firefly-forest", "반딧불이 숲", "밤이면 신비로운 반딧불이들이 춤추는 아름다운 숲입니다.", 37.69, 80.57, LocationForest},
	{"echo-pass", "메아리 협로", "바람 소리가 메아리쳐 들리는 험난한 협곡입니다.", 27.31, 83.71, LocationLandmark},
	{"seagull-village", "갈매기 마을", "바다 냄새 물씬 풍기는 평화로운 어촌 마을입니다.", 38.46, 86.86, LocationCity},
	{"sky-pillar-mountain", "하늘기둥 바위산", "하늘을 찌를 듯 솟아오른 거대한 바위산입니다.", 12.31, 91.29, LocationLandmark},
	{"shade-forest", "그늘 숲", "울창한 나무들이 해를 가려 항상 서늘한 숲입니다.", 48.46, 63.14, LocationForest},
	{"rest-cemetery", "안식의 묘지", "고대 영웅들이 잠들어 있는 고요하고 엄숙한 묘지입니다.", 37.12, 55.29, LocationLandmark},
	{"fortress-pass", "요새 고개", "요충지를 지키는 전략적 가치가 높은 험한 고개입니다.", 49.42, 50.86, LocationLandmark},
	{"blue-hill-marsh", "푸른 언덕 습원", "푸른 이끼와 맑은 물이 어우러진 신비로운 습지대입니다.", 65.77, 55.86, LocationForest},
	{"secret-trench", "비밀을 품은 해구", "깊은 바닷속 고대의 비밀이 숨겨져 있을 것 같은 해구입니다.", 53.27, 74.71, LocationSecret},
	{"maple-zone", "단풍 지대", "사시사철 붉은 단풍이 대지를 수놓는 아름다운 곳입니다.", 27.12, 35.43, LocationForest},
	{"iron-heart-fortress", "강철심장 요새", "강력한 군사력을 상징하는 거대한 강철 요새입니다.", 61.54, 40.14, LocationCity},
	{"silent-wind-entrance", "고요한바람 초원 입구", "끝없이 펼쳐진 초원으로 향하는 고요한 길목입니다.", 66.70, 32.71, LocationLandmark},
	{"deep-wind-border", "깊은바람 경계지", "거친 바람이 몰아치는 대륙의 위험한 경계 구역입니다.", 66.35, 23.14, LocationLandmark},
	{"thick-mist-zone", "짙은 안개 지대", "한 치 앞도 보이지 않는 짙은 안개가 항상 깔려 있는 곳입니다.", 83.08, 29.71, LocationLandmark},
	{"sleeping-star-tree", "별이 잠든 나무", "하늘의 별빛을 받아 신비롭게 빛나는 거대 고목입니다.", 93.85, 23.00, LocationLandmark},
	{"dragon-rock-mountain", "용 바위산", "거대한 용의 형상을 닮은 험준하고 신비로운 바위산입니다.", 80.19, 11.43, LocationLandmark},
}

// FindLocation 按 ID 查找地点
func FindLocation(id string) (Location, bool) {
	for _, l := range Locations {
		if l.ID == id {
			return l, true
		}
	}
	return Location{}, false
}
