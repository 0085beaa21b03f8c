package i18n

// ZhCNMessages 中文消息目录
var ZhCNMessages = map[string]string{
	// UI - 面板标题
	"panel.chat":     "对话",
	"panel.session":  "会话",
	"panel.dials":    "旋钮",
	"panel.pipeline": "流水线",

	// 阶段
	"stage.setup":       "准备",
	"stage.dial-tuning": "调整旋钮",
	"stage.frame":       "框架",
	"stage.outline":     "大纲",
	"stage.scenes":      "场景",
	"stage.npcs":        "NPC",
	"stage.adversaries": "敌人",
	"stage.items":       "物品",
	"stage.echoes":      "回响",
	"stage.complete":    "完成",

	// 会话
	"session.welcome":          "欢迎来到《%s》。先来调整旋钮：队伍人数、等级、场景数量和时长。说说你心中的冒险吧。",
	"session.welcome_untitled": "欢迎。先来调整旋钮：队伍人数、等级、场景数量和时长。说说你心中的冒险吧。",
	"session.created":          "已创建会话 %s",
	"session.resumed":          "已恢复会话 %s（%s）",
	"session.none":             "没有已保存的会话",
	"session.back":             "已返回 %s",

	// UI - 状态栏
	"status.ready":       "就绪",
	"status.streaming":   "生成中...",
	"status.interrupted": "已中断生成",
	"status.tool":        "正在执行 %s",
	"status.blocked":     "下一步：%s（未满足：%s）",
	"status.next":        "下一步：%s",

	// UI - 输入
	"input.placeholder": "描述你的冒险...（回车发送）",

	// UI - 快捷键
	"keys.esc":    "esc 中断",
	"keys.ctrl_b": "ctrl+b 返回",
	"keys.ctrl_c": "ctrl+c 退出",

	// 命令
	"cmd.help":     "显示可用命令",
	"cmd.new":      "开始新冒险：/new <名称>",
	"cmd.sessions": "列出已保存的会话",
	"cmd.resume":   "恢复会话：/resume <id>",
	"cmd.back":     "返回上一阶段",
	"cmd.state":    "显示会话状态",
	"cmd.models":   "查看或切换模型：/models [名称|序号]",
	"cmd.exit":     "退出",

	// 错误
	"error.provider": "模型服务错误：%s",
	"error.busy":     "已有回合在进行",
	"error.unknown":  "未知命令：%s",
}
