// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理 flowagent serve 命令的 HTTP 服务器生命周期。

Manager 封装 net/http.Server：Start 非阻塞监听，Shutdown 在配置的
超时内排空请求，Errors 暴露服务异常退出。信号处理由调用方通过
context 完成。
*/
package server
